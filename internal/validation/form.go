package validation

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/rendis/cdnflow/pkg/schema"
)

// NewStructValidator returns the validator used for settings, config and
// request bodies.
func NewStructValidator() *validator.Validate {
	return validator.New(validator.WithRequiredStructEnabled())
}

// ValidateStruct runs struct tag validation and converts failures into a
// VALIDATION_ERROR listing each offending field.
func ValidateStruct(v *validator.Validate, s any) error {
	err := v.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return schema.NewError(schema.ErrCodeValidation, err.Error()).WithCause(err)
	}
	result := &schema.ValidationResult{}
	for _, fe := range verrs {
		result.AddError(fe.Namespace(), schema.ErrCodeValidation, describe(fe.Field(), fe))
	}
	return result.ToError()
}

// FormValidator checks node configuration edits against the node type's
// config schema. Defaults are trusted; only human edits pass through here.
type FormValidator struct {
	v     *validator.Validate
	types TypeLookup
}

// NewFormValidator creates a FormValidator.
func NewFormValidator(types TypeLookup) *FormValidator {
	return &FormValidator{v: NewStructValidator(), types: types}
}

// ValidateConfig checks every key of patch. Keys absent from the config
// schema are accepted only if the type's default config declares them, and
// then only with the default's value kind.
func (f *FormValidator) ValidateConfig(typeID string, patch schema.Config) *schema.ValidationResult {
	result := &schema.ValidationResult{}
	desc, err := f.types.Lookup(typeID)
	if err != nil {
		result.AddError("type", schema.ErrCodeUnknownNodeType, err.Error())
		return result
	}

	for _, key := range sortedKeys(patch) {
		value := patch[key]
		path := "config." + key

		field, ok := desc.Field(key)
		if !ok {
			def, declared := desc.DefaultConfig[key]
			switch {
			case !declared:
				result.AddError(path, schema.ErrCodeValidation, fmt.Sprintf("unknown config key %q", key))
			case def.Kind() != value.Kind():
				result.AddError(path, schema.ErrCodeValidation,
					fmt.Sprintf("%s must be a %s, got %s", key, def.Kind(), value.Kind()))
			}
			continue
		}

		if msg := f.checkField(field, value); msg != "" {
			result.AddError(path, schema.ErrCodeValidation, msg)
		}
	}
	return result
}

func (f *FormValidator) checkField(field schema.ConfigField, value schema.ConfigValue) string {
	switch field.Kind {
	case schema.FieldText:
		s, ok := value.AsString()
		if !ok {
			return kindMismatch(field, schema.KindString, value)
		}
		if field.Required {
			return f.check(field, strings.TrimSpace(s), "required")
		}

	case schema.FieldNumber, schema.FieldRange:
		n, ok := value.AsNumber()
		if !ok {
			return kindMismatch(field, schema.KindNumber, value)
		}
		var tags []string
		if field.Min != nil {
			tags = append(tags, "gte="+formatBound(*field.Min))
		}
		if field.Max != nil {
			tags = append(tags, "lte="+formatBound(*field.Max))
		}
		if len(tags) > 0 {
			return f.check(field, n, strings.Join(tags, ","))
		}

	case schema.FieldBoolean:
		if _, ok := value.AsBool(); !ok {
			return kindMismatch(field, schema.KindBool, value)
		}

	case schema.FieldSelect:
		s, ok := value.AsString()
		if !ok {
			return kindMismatch(field, schema.KindString, value)
		}
		return f.checkOptions(field, []string{s})

	case schema.FieldMultiselect:
		items, ok := value.AsList()
		if !ok {
			return kindMismatch(field, schema.KindList, value)
		}
		if field.Required {
			if msg := f.check(field, items, "min=1"); msg != "" {
				return msg
			}
		}
		return f.checkOptions(field, items)

	default:
		return fmt.Sprintf("%s has unsupported field kind %q", field.Key, field.Kind)
	}
	return ""
}

// checkOptions uses validator's oneof when every option can be expressed in
// a tag, and a plain membership test otherwise.
func (f *FormValidator) checkOptions(field schema.ConfigField, values []string) string {
	if len(field.Options) == 0 {
		return ""
	}
	quoted := make([]string, 0, len(field.Options))
	taggable := true
	for _, o := range field.Options {
		if strings.ContainsAny(o.Value, ",|'") || o.Value == "" {
			taggable = false
			break
		}
		quoted = append(quoted, "'"+o.Value+"'")
	}

	for _, v := range values {
		if taggable {
			if msg := f.check(field, v, "oneof="+strings.Join(quoted, " ")); msg != "" {
				return msg
			}
			continue
		}
		if !hasOption(field.Options, v) {
			return fmt.Sprintf("%s must be one of %s", field.Key, optionList(field.Options))
		}
	}
	return ""
}

func (f *FormValidator) check(field schema.ConfigField, value any, tag string) string {
	err := f.v.Var(value, tag)
	if err == nil {
		return ""
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		if verrs[0].Tag() == "oneof" {
			return fmt.Sprintf("%s must be one of %s", field.Key, optionList(field.Options))
		}
		return describe(field.Key, verrs[0])
	}
	return fmt.Sprintf("%s: %s", field.Key, err.Error())
}

func describe(name string, fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return name + " is required"
	case "gte":
		return fmt.Sprintf("%s must be >= %s", name, fe.Param())
	case "lte":
		return fmt.Sprintf("%s must be <= %s", name, fe.Param())
	case "min":
		return fmt.Sprintf("%s must have at least %s item(s)", name, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", name, fe.Param())
	}
	return fmt.Sprintf("%s failed %q validation", name, fe.Tag())
}

func kindMismatch(field schema.ConfigField, want schema.ValueKind, got schema.ConfigValue) string {
	return fmt.Sprintf("%s must be a %s, got %s", field.Key, want, got.Kind())
}

func formatBound(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func hasOption(opts []schema.FieldOption, v string) bool {
	for _, o := range opts {
		if o.Value == v {
			return true
		}
	}
	return false
}

func optionList(opts []schema.FieldOption) string {
	vals := make([]string, len(opts))
	for i, o := range opts {
		vals[i] = strconv.Quote(o.Value)
	}
	return "[" + strings.Join(vals, ", ") + "]"
}

func sortedKeys(c schema.Config) []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
