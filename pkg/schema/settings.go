package schema

// PortPosition is the side of a node where ports are drawn.
type PortPosition string

const (
	PortTop    PortPosition = "top"
	PortRight  PortPosition = "right"
	PortBottom PortPosition = "bottom"
	PortLeft   PortPosition = "left"
)

// PortSize is the rendered port size.
type PortSize string

const (
	PortSizeSmall  PortSize = "small"
	PortSizeMedium PortSize = "medium"
	PortSizeLarge  PortSize = "large"
)

// LabelPosition places node labels above or below the node.
type LabelPosition string

const (
	LabelTop    LabelPosition = "top"
	LabelBottom LabelPosition = "bottom"
)

// LabelFontSize is the node label font size step.
type LabelFontSize string

const (
	FontXXXXXS LabelFontSize = "xxxxxs"
	FontXXXXS  LabelFontSize = "xxxxs"
	FontXXXS   LabelFontSize = "xxxs"
	FontXXS    LabelFontSize = "xxs"
	FontXS     LabelFontSize = "xs"
	FontSM     LabelFontSize = "sm"
	FontBase   LabelFontSize = "base"
	FontLG     LabelFontSize = "lg"
)

// Theme is the editor color theme.
type Theme string

const (
	ThemeLight Theme = "light"
	ThemeDark  Theme = "dark"
)

// GlobalSettings holds rendering preferences. The graph core never reads them.
type GlobalSettings struct {
	OutputPortPosition PortPosition  `json:"outputPortPosition" validate:"oneof=top right bottom left"`
	InputPortPosition  PortPosition  `json:"inputPortPosition" validate:"oneof=top right bottom left"`
	ShowPortLabels     bool          `json:"showPortLabels"`
	PortSize           PortSize      `json:"portSize" validate:"oneof=small medium large"`
	LabelPosition      LabelPosition `json:"labelPosition" validate:"oneof=top bottom"`
	LabelFontSize      LabelFontSize `json:"labelFontSize" validate:"oneof=xxxxxs xxxxs xxxs xxs xs sm base lg"`
	Theme              Theme         `json:"theme" validate:"oneof=light dark"`
	GridVisible        bool          `json:"gridVisible"`
	SnapToGrid         bool          `json:"snapToGrid"`
}

// DefaultSettings returns the settings used when nothing is persisted.
func DefaultSettings() GlobalSettings {
	return GlobalSettings{
		OutputPortPosition: PortRight,
		InputPortPosition:  PortLeft,
		ShowPortLabels:     true,
		PortSize:           PortSizeSmall,
		LabelPosition:      LabelBottom,
		LabelFontSize:      FontXXXXXS,
		Theme:              ThemeLight,
		GridVisible:        true,
		SnapToGrid:         false,
	}
}

// SettingsPatch is a partial settings update; nil fields are left unchanged.
type SettingsPatch struct {
	OutputPortPosition *PortPosition  `json:"outputPortPosition,omitempty"`
	InputPortPosition  *PortPosition  `json:"inputPortPosition,omitempty"`
	ShowPortLabels     *bool          `json:"showPortLabels,omitempty"`
	PortSize           *PortSize      `json:"portSize,omitempty"`
	LabelPosition      *LabelPosition `json:"labelPosition,omitempty"`
	LabelFontSize      *LabelFontSize `json:"labelFontSize,omitempty"`
	Theme              *Theme         `json:"theme,omitempty"`
	GridVisible        *bool          `json:"gridVisible,omitempty"`
	SnapToGrid         *bool          `json:"snapToGrid,omitempty"`
}

// Apply returns s with every non-nil field of p applied.
func (p SettingsPatch) Apply(s GlobalSettings) GlobalSettings {
	if p.OutputPortPosition != nil {
		s.OutputPortPosition = *p.OutputPortPosition
	}
	if p.InputPortPosition != nil {
		s.InputPortPosition = *p.InputPortPosition
	}
	if p.ShowPortLabels != nil {
		s.ShowPortLabels = *p.ShowPortLabels
	}
	if p.PortSize != nil {
		s.PortSize = *p.PortSize
	}
	if p.LabelPosition != nil {
		s.LabelPosition = *p.LabelPosition
	}
	if p.LabelFontSize != nil {
		s.LabelFontSize = *p.LabelFontSize
	}
	if p.Theme != nil {
		s.Theme = *p.Theme
	}
	if p.GridVisible != nil {
		s.GridVisible = *p.GridVisible
	}
	if p.SnapToGrid != nil {
		s.SnapToGrid = *p.SnapToGrid
	}
	return s
}
