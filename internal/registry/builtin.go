package registry

import (
	"sync"

	"github.com/rendis/cdnflow/pkg/schema"
)

// Node type identifiers shipped with the application.
const (
	TypeAlibabaCDN        = "alibaba-cdn"
	TypeAlibabaOSS        = "alibaba-oss"
	TypeAWSCloudFront     = "aws-cloudfront"
	TypeAWSS3             = "aws-s3"
	TypeCloudflareCDN     = "cloudflare-cdn"
	TypeCloudflareWorkers = "cloudflare-workers"
	TypeOriginServer      = "origin-server"
	TypeLoadBalancer      = "load-balancer"
	TypeEdgeCache         = "edge-cache"
	TypeRegionalCache     = "regional-cache"
	TypeBrowserCache      = "browser-cache"
	TypeImageOptimizer    = "image-optimizer"
	TypeMinifier          = "minifier"
	TypeGzipCompressor    = "gzip-compressor"
	TypeBrotliCompressor  = "brotli-compressor"
	TypeWAF               = "waf"
	TypeDDoSProtection    = "ddos-protection"
	TypeSSLTermination    = "ssl-termination"
	TypeAnalytics         = "analytics"
	TypeMonitoring        = "monitoring"
	TypeAlerting          = "alerting"
	TypeGeoRouting        = "geo-routing"
	TypeSmartRouting      = "smart-routing"
	TypeFailover          = "failover"
	TypeEndUser           = "end-user"
)

// Port colors.
const (
	colorSuccess = "#10b981"
	colorError   = "#ef4444"
	colorWarning = "#f59e0b"
	colorData    = "#3b82f6"
	colorMuted   = "#6b7280"
)

var (
	builtinOnce sync.Once
	builtin     *Registry
)

// Builtin returns the shared registry of shipped node types.
func Builtin() *Registry {
	builtinOnce.Do(func() {
		r, err := New(catalog()...)
		if err != nil {
			panic("registry: invalid builtin catalog: " + err.Error())
		}
		builtin = r
	})
	return builtin
}

func str(s string) schema.ConfigValue     { return schema.StringValue(s) }
func num(n float64) schema.ConfigValue    { return schema.NumberValue(n) }
func flag(b bool) schema.ConfigValue      { return schema.BoolValue(b) }
func list(s ...string) schema.ConfigValue { return schema.ListValue(s...) }

func bound(f float64) *float64 { return &f }

func withDefault(f schema.ConfigField, v schema.ConfigValue) schema.ConfigField {
	f.DefaultValue = &v
	return f
}

func textField(key, label string, required bool) schema.ConfigField {
	return schema.ConfigField{Key: key, Label: label, Kind: schema.FieldText, Required: required}
}

func boolField(key, label string, def bool) schema.ConfigField {
	return withDefault(schema.ConfigField{Key: key, Label: label, Kind: schema.FieldBoolean}, flag(def))
}

// numberField takes nil bounds for open ranges.
func numberField(key, label string, lo, hi *float64, def float64) schema.ConfigField {
	return withDefault(schema.ConfigField{Key: key, Label: label, Kind: schema.FieldNumber, Min: lo, Max: hi}, num(def))
}

func rangeField(key, label string, lo, hi, def float64) schema.ConfigField {
	return withDefault(schema.ConfigField{
		Key: key, Label: label, Kind: schema.FieldRange, Min: bound(lo), Max: bound(hi),
	}, num(def))
}

// selectField takes alternating label, value pairs.
func selectField(key, label, def string, pairs ...string) schema.ConfigField {
	opts := make([]schema.FieldOption, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		opts = append(opts, schema.FieldOption{Label: pairs[i], Value: pairs[i+1]})
	}
	return withDefault(schema.ConfigField{Key: key, Label: label, Kind: schema.FieldSelect, Options: opts}, str(def))
}

func port(id, label string, kind schema.OutputKind, color, desc string) schema.OutputPort {
	return schema.OutputPort{ID: id, Label: label, Kind: kind, Color: color, Description: desc}
}

func successErr(okID, okLabel, okDesc, errDesc string) []schema.OutputPort {
	return []schema.OutputPort{
		port(okID, okLabel, schema.OutputSuccess, colorSuccess, okDesc),
		port("error", "Error", schema.OutputError, colorError, errDesc),
	}
}

var awsRegions = []string{
	"US East", "us-east-1",
	"US West", "us-west-2",
	"Europe", "eu-west-1",
	"Asia Pacific", "ap-southeast-1",
}

var compressTypes = []string{"text/html", "text/css", "application/javascript", "application/json"}

func catalog() []schema.NodeTypeDescriptor {
	return []schema.NodeTypeDescriptor{
		{
			Type: TypeAlibabaCDN, Label: "Alibaba Cloud CDN",
			Description: "Alibaba Cloud content delivery network with global acceleration",
			Provider:    schema.ProviderAlibaba, Category: schema.CategoryCache, Icon: "zap", Color: "#ff6900",
			DefaultConfig: schema.Config{
				"domain": str(""), "region": str("global"), "httpsEnabled": flag(true), "cacheRules": list(),
			},
			ConfigSchema: []schema.ConfigField{
				textField("domain", "Accelerated domain", true),
				selectField("region", "Acceleration region", "global",
					"Global", "global", "Mainland China", "china", "Overseas", "overseas"),
				boolField("httpsEnabled", "Enable HTTPS", true),
			},
			Outputs: successErr("success", "Success", "CDN acceleration succeeded", "CDN service error"),
		},
		{
			Type: TypeAlibabaOSS, Label: "Alibaba Cloud OSS",
			Description: "Alibaba Cloud object storage service",
			Provider:    schema.ProviderAlibaba, Category: schema.CategorySource, Icon: "server", Color: "#ff6900",
			DefaultConfig: schema.Config{
				"bucket": str(""), "region": str("oss-cn-hangzhou"), "accessKey": str(""), "secretKey": str(""),
			},
			ConfigSchema: []schema.ConfigField{
				textField("bucket", "Bucket name", true),
				selectField("region", "Region", "oss-cn-hangzhou",
					"East China 1 (Hangzhou)", "oss-cn-hangzhou",
					"East China 2 (Shanghai)", "oss-cn-shanghai",
					"North China 1 (Qingdao)", "oss-cn-qingdao",
					"North China 2 (Beijing)", "oss-cn-beijing"),
			},
			Outputs: successErr("success", "Success", "OSS access succeeded", "OSS access failed"),
		},
		{
			Type: TypeAWSCloudFront, Label: "AWS CloudFront",
			Description: "Amazon CloudFront global content delivery network",
			Provider:    schema.ProviderAWS, Category: schema.CategoryCache, Icon: "zap", Color: "#ff9900",
			DefaultConfig: schema.Config{
				"distributionId": str(""), "region": str("us-east-1"), "httpsEnabled": flag(true),
				"priceClass": str("PriceClass_100"),
			},
			ConfigSchema: []schema.ConfigField{
				textField("distributionId", "Distribution ID", true),
				selectField("region", "Region", "us-east-1", awsRegions...),
				boolField("httpsEnabled", "Enable HTTPS", true),
			},
			Outputs: successErr("success", "Success", "CloudFront acceleration succeeded", "CloudFront service error"),
		},
		{
			Type: TypeAWSS3, Label: "AWS S3",
			Description: "Amazon Simple Storage Service object storage",
			Provider:    schema.ProviderAWS, Category: schema.CategorySource, Icon: "server", Color: "#ff9900",
			DefaultConfig: schema.Config{
				"bucket": str(""), "region": str("us-east-1"), "accessKey": str(""), "secretKey": str(""),
			},
			ConfigSchema: []schema.ConfigField{
				textField("bucket", "Bucket name", true),
				selectField("region", "Region", "us-east-1", awsRegions...),
			},
			Outputs: successErr("success", "Success", "S3 access succeeded", "S3 access failed"),
		},
		{
			Type: TypeCloudflareCDN, Label: "Cloudflare CDN",
			Description: "Cloudflare global content delivery network",
			Provider:    schema.ProviderCloudflare, Category: schema.CategoryCache, Icon: "zap", Color: "#f38020",
			DefaultConfig: schema.Config{
				"zoneId": str(""), "domain": str(""), "sslMode": str("full"), "cacheLevel": str("aggressive"),
			},
			ConfigSchema: []schema.ConfigField{
				textField("zoneId", "Zone ID", true),
				textField("domain", "Domain", true),
				selectField("sslMode", "SSL mode", "full", "Full", "full", "Flexible", "flexible", "Strict", "strict"),
			},
			Outputs: successErr("success", "Success", "Cloudflare acceleration succeeded", "Cloudflare service error"),
		},
		{
			Type: TypeCloudflareWorkers, Label: "Cloudflare Workers",
			Description: "Cloudflare edge compute",
			Provider:    schema.ProviderCloudflare, Category: schema.CategoryOptimization, Icon: "cpu", Color: "#f38020",
			DefaultConfig: schema.Config{
				"script": str(""), "route": str(""), "environment": str("production"),
			},
			ConfigSchema: []schema.ConfigField{
				textField("script", "Script", true),
				textField("route", "Route pattern", true),
			},
			Outputs: successErr("success", "Success", "Worker ran successfully", "Worker failed"),
		},
		{
			Type: TypeOriginServer, Label: "Origin Server",
			Description: "Origin server holding the site's original files and data",
			Provider:    schema.ProviderGeneric, Category: schema.CategorySource, Icon: "server", Color: "#10b981",
			DefaultConfig: schema.Config{
				"url": str(""), "protocol": str("https"), "port": num(443), "healthCheck": flag(true), "timeout": num(30000),
			},
			ConfigSchema: []schema.ConfigField{
				textField("url", "Server address", true),
				selectField("protocol", "Protocol", "https", "HTTPS", "https", "HTTP", "http"),
				numberField("port", "Port", bound(1), bound(65535), 443),
				boolField("healthCheck", "Health check", true),
				numberField("timeout", "Timeout (ms)", bound(1000), bound(60000), 30000),
			},
			Outputs: successErr("success", "Success", "Content fetched", "Server error or timeout"),
		},
		{
			Type: TypeLoadBalancer, Label: "Load Balancer",
			Description: "Distributes requests across servers for availability and performance",
			Provider:    schema.ProviderGeneric, Category: schema.CategoryRouting, Icon: "shuffle", Color: "#3b82f6",
			DefaultConfig: schema.Config{
				"algorithm": str("round-robin"), "healthCheck": flag(true), "failoverEnabled": flag(true),
				"stickySession": flag(false),
			},
			ConfigSchema: []schema.ConfigField{
				selectField("algorithm", "Balancing algorithm", "round-robin",
					"Round robin", "round-robin",
					"Least connections", "least-connections",
					"IP hash", "ip-hash",
					"Weighted round robin", "weighted-round-robin"),
				boolField("healthCheck", "Health check", true),
				boolField("failoverEnabled", "Enable failover", true),
				boolField("stickySession", "Sticky sessions", false),
			},
			Outputs: []schema.OutputPort{
				port("success", "Success", schema.OutputSuccess, colorSuccess, "Request dispatched"),
				port("overload", "Overload", schema.OutputWarning, colorWarning, "Load too high"),
				port("error", "Error", schema.OutputError, colorError, "No server available"),
			},
		},
		{
			Type: TypeEdgeCache, Label: "Edge Cache",
			Description: "Cache servers close to users for the fastest content access",
			Provider:    schema.ProviderGeneric, Category: schema.CategoryCache, Icon: "zap", Color: "#f59e0b",
			DefaultConfig: schema.Config{
				"ttl": num(3600), "maxSize": str("10GB"), "cacheRules": list(), "purgeEnabled": flag(true),
			},
			ConfigSchema: []schema.ConfigField{
				numberField("ttl", "Cache TTL (s)", bound(60), bound(86400), 3600),
				withDefault(textField("maxSize", "Max cache size", false), str("10GB")),
				boolField("purgeEnabled", "Enable purge", true),
			},
			Outputs: []schema.OutputPort{
				port("hit", "Hit", schema.OutputCacheHit, colorSuccess, "Cache hit"),
				port("miss", "Miss", schema.OutputCacheMiss, colorWarning, "Cache miss"),
				port("error", "Error", schema.OutputError, colorError, "Cache service error"),
			},
		},
		{
			Type: TypeRegionalCache, Label: "Regional Cache",
			Description: "Regional cache tier feeding multiple edge locations",
			Category:    schema.CategoryCache, Icon: "globe", Color: "#f59e0b",
			DefaultConfig: schema.Config{
				"ttl": num(7200), "maxSize": str("100GB"), "regions": list(),
			},
			ConfigSchema: []schema.ConfigField{
				numberField("ttl", "Cache TTL (s)", bound(300), bound(604800), 7200),
				withDefault(textField("maxSize", "Max cache size", false), str("100GB")),
			},
			Outputs: []schema.OutputPort{
				port("hit", "Hit", schema.OutputCacheHit, colorSuccess, "Regional cache hit"),
				port("miss", "Miss", schema.OutputCacheMiss, colorWarning, "Regional cache miss"),
				port("error", "Error", schema.OutputError, colorError, "Regional cache error"),
			},
		},
		{
			Type: TypeBrowserCache, Label: "Browser Cache",
			Description: "Browser caching policy that reduces repeat requests",
			Category:    schema.CategoryCache, Icon: "monitor", Color: "#f59e0b",
			DefaultConfig: schema.Config{
				"maxAge": num(86400), "noCache": flag(false), "mustRevalidate": flag(false),
			},
			ConfigSchema: []schema.ConfigField{
				numberField("maxAge", "Max age (s)", bound(0), bound(31536000), 86400),
				boolField("noCache", "Disable caching", false),
				boolField("mustRevalidate", "Must revalidate", false),
			},
			Outputs: []schema.OutputPort{
				port("cached", "Cached", schema.OutputSuccess, colorSuccess, "Browser cache applied"),
				port("refresh", "Refresh", schema.OutputData, colorData, "Content needs refresh"),
			},
		},
		{
			Type: TypeImageOptimizer, Label: "Image Optimizer",
			Description: "Optimizes image format, size and quality",
			Provider:    schema.ProviderGeneric, Category: schema.CategoryOptimization, Icon: "image", Color: "#8b5cf6",
			DefaultConfig: schema.Config{
				"quality": num(80), "format": str("auto"), "webpEnabled": flag(true), "avifEnabled": flag(false),
				"progressive": flag(true),
			},
			ConfigSchema: []schema.ConfigField{
				rangeField("quality", "Image quality", 10, 100, 80),
				selectField("format", "Output format", "auto",
					"Auto", "auto", "WebP", "webp", "AVIF", "avif", "JPEG", "jpeg", "PNG", "png"),
				boolField("webpEnabled", "Enable WebP", true),
				boolField("avifEnabled", "Enable AVIF", false),
				boolField("progressive", "Progressive loading", true),
			},
			Outputs: successErr("optimized", "Optimized", "Image optimized", "Image processing failed"),
		},
		{
			Type: TypeMinifier, Label: "Minifier",
			Description: "Shrinks HTML, CSS and JavaScript",
			Category:    schema.CategoryOptimization, Icon: "minimize-2", Color: "#8b5cf6",
			DefaultConfig: schema.Config{
				"html": flag(true), "css": flag(true), "javascript": flag(true),
				"removeComments": flag(true), "removeWhitespace": flag(true),
			},
			ConfigSchema: []schema.ConfigField{
				boolField("html", "Minify HTML", true),
				boolField("css", "Minify CSS", true),
				boolField("javascript", "Minify JavaScript", true),
				boolField("removeComments", "Remove comments", true),
				boolField("removeWhitespace", "Remove whitespace", true),
			},
			Outputs: successErr("minified", "Minified", "Code minified", "Minification failed"),
		},
		{
			Type: TypeGzipCompressor, Label: "Gzip Compressor",
			Description: "Compresses responses with gzip",
			Category:    schema.CategoryOptimization, Icon: "archive", Color: "#8b5cf6",
			DefaultConfig: schema.Config{
				"level": num(6), "minSize": num(1024), "types": list(compressTypes...),
			},
			ConfigSchema: []schema.ConfigField{
				rangeField("level", "Compression level", 1, 9, 6),
				numberField("minSize", "Minimum size (bytes)", bound(0), nil, 1024),
			},
			Outputs: []schema.OutputPort{
				port("compressed", "Compressed", schema.OutputSuccess, colorSuccess, "Gzip compression succeeded"),
				port("skipped", "Skipped", schema.OutputData, colorMuted, "File too small to compress"),
			},
		},
		{
			Type: TypeBrotliCompressor, Label: "Brotli Compressor",
			Description: "Compresses responses with Brotli, denser than gzip",
			Category:    schema.CategoryOptimization, Icon: "package", Color: "#8b5cf6",
			DefaultConfig: schema.Config{
				"quality": num(6), "minSize": num(1024), "types": list(compressTypes...),
			},
			ConfigSchema: []schema.ConfigField{
				rangeField("quality", "Compression quality", 0, 11, 6),
				numberField("minSize", "Minimum size (bytes)", bound(0), nil, 1024),
			},
			Outputs: []schema.OutputPort{
				port("compressed", "Compressed", schema.OutputSuccess, colorSuccess, "Brotli compression succeeded"),
				port("skipped", "Skipped", schema.OutputData, colorMuted, "File too small to compress"),
			},
		},
		{
			Type: TypeWAF, Label: "Web Application Firewall",
			Description: "Protects the site from malicious requests",
			Provider:    schema.ProviderGeneric, Category: schema.CategorySecurity, Icon: "shield", Color: "#ef4444",
			DefaultConfig: schema.Config{
				"sqlInjection": flag(true), "xss": flag(true), "rateLimiting": flag(true),
				"geoBlocking": flag(false), "customRules": list(),
			},
			ConfigSchema: []schema.ConfigField{
				boolField("sqlInjection", "SQL injection protection", true),
				boolField("xss", "XSS protection", true),
				boolField("rateLimiting", "Rate limiting", true),
				boolField("geoBlocking", "Geo blocking", false),
			},
			Outputs: []schema.OutputPort{
				port("passed", "Passed", schema.OutputPassed, colorSuccess, "Security checks passed"),
				port("blocked", "Blocked", schema.OutputBlocked, colorError, "Threat detected and blocked"),
				port("warning", "Warning", schema.OutputWarning, colorWarning, "Suspicious request"),
			},
		},
		{
			Type: TypeDDoSProtection, Label: "DDoS Protection",
			Description: "Mitigates distributed denial-of-service attacks",
			Category:    schema.CategorySecurity, Icon: "shield-check", Color: "#ef4444",
			DefaultConfig: schema.Config{
				"threshold": num(1000), "challengeEnabled": flag(true), "autoBlocking": flag(true),
			},
			ConfigSchema: []schema.ConfigField{
				numberField("threshold", "Trigger threshold (req/s)", bound(100), nil, 1000),
				boolField("challengeEnabled", "Enable challenge", true),
				boolField("autoBlocking", "Automatic blocking", true),
			},
			Outputs: []schema.OutputPort{
				port("passed", "Passed", schema.OutputPassed, colorSuccess, "Normal traffic"),
				port("blocked", "Blocked", schema.OutputBlocked, colorError, "DDoS traffic blocked"),
				port("challenge", "Challenge", schema.OutputWarning, colorWarning, "Human verification required"),
			},
		},
		{
			Type: TypeSSLTermination, Label: "SSL Termination",
			Description: "Handles SSL/TLS encryption and decryption",
			Category:    schema.CategorySecurity, Icon: "lock", Color: "#ef4444",
			DefaultConfig: schema.Config{
				"tlsVersion": str("TLS 1.3"), "hsts": flag(true), "ocspStapling": flag(true),
			},
			ConfigSchema: []schema.ConfigField{
				selectField("tlsVersion", "TLS version", "TLS 1.3",
					"TLS 1.3", "TLS 1.3", "TLS 1.2", "TLS 1.2", "TLS 1.1", "TLS 1.1"),
				boolField("hsts", "Enable HSTS", true),
				boolField("ocspStapling", "OCSP stapling", true),
			},
			Outputs: successErr("secured", "Secured", "TLS established", "Certificate error"),
		},
		{
			Type: TypeAnalytics, Label: "Analytics",
			Description: "Collects and analyzes traffic data",
			Provider:    schema.ProviderGeneric, Category: schema.CategoryMonitoring, Icon: "bar-chart", Color: "#06b6d4",
			DefaultConfig: schema.Config{
				"realTime": flag(true), "sampling": num(100), "retention": num(90),
			},
			ConfigSchema: []schema.ConfigField{
				boolField("realTime", "Real-time analysis", true),
				rangeField("sampling", "Sampling rate (%)", 1, 100, 100),
				numberField("retention", "Retention (days)", bound(1), bound(365), 90),
			},
			Outputs: []schema.OutputPort{
				port("data", "Data", schema.OutputData, colorData, "Analytics output"),
			},
		},
		{
			Type: TypeMonitoring, Label: "Performance Monitoring",
			Description: "Monitors performance and availability",
			Category:    schema.CategoryMonitoring, Icon: "activity", Color: "#06b6d4",
			DefaultConfig: schema.Config{
				"interval": num(60), "uptime": flag(true), "performance": flag(true), "alerts": flag(true),
			},
			ConfigSchema: []schema.ConfigField{
				numberField("interval", "Interval (s)", bound(10), bound(3600), 60),
				boolField("uptime", "Uptime checks", true),
				boolField("performance", "Performance checks", true),
				boolField("alerts", "Enable alerts", true),
			},
			Outputs: []schema.OutputPort{
				port("metrics", "Metrics", schema.OutputData, colorData, "Performance metrics"),
				port("alert", "Alert", schema.OutputWarning, colorWarning, "Performance anomaly"),
			},
		},
		{
			Type: TypeAlerting, Label: "Alerting",
			Description: "Sends notifications when something goes wrong",
			Category:    schema.CategoryMonitoring, Icon: "bell", Color: "#06b6d4",
			DefaultConfig: schema.Config{
				"email": flag(true), "slack": flag(false), "webhook": flag(false), "threshold": num(95),
			},
			ConfigSchema: []schema.ConfigField{
				boolField("email", "Email notifications", true),
				boolField("slack", "Slack notifications", false),
				boolField("webhook", "Webhook notifications", false),
				rangeField("threshold", "Alert threshold (%)", 50, 100, 95),
			},
			Outputs: []schema.OutputPort{
				port("sent", "Sent", schema.OutputSuccess, colorSuccess, "Notification sent"),
				port("failed", "Failed", schema.OutputError, colorError, "Notification failed"),
			},
		},
		{
			Type: TypeGeoRouting, Label: "Geo Routing",
			Description: "Routes users to the nearest region",
			Provider:    schema.ProviderGeneric, Category: schema.CategoryRouting, Icon: "map-pin", Color: "#3b82f6",
			DefaultConfig: schema.Config{
				"regions":  list("us-east", "us-west", "eu-west", "ap-southeast"),
				"fallback": str("us-east"), "latencyBased": flag(true),
			},
			ConfigSchema: []schema.ConfigField{
				selectField("fallback", "Default region", "us-east",
					"US East", "us-east", "US West", "us-west", "EU West", "eu-west", "AP Southeast", "ap-southeast"),
				boolField("latencyBased", "Latency-based routing", true),
			},
			Outputs: []schema.OutputPort{
				port("routed", "Routed", schema.OutputSuccess, colorSuccess, "Routed to target region"),
				port("fallback", "Fallback", schema.OutputWarning, colorWarning, "Fallback route used"),
			},
		},
		{
			Type: TypeSmartRouting, Label: "Smart Routing",
			Description: "Picks routes from live network conditions",
			Category:    schema.CategoryRouting, Icon: "route", Color: "#3b82f6",
			DefaultConfig: schema.Config{
				"algorithm": str("latency"), "healthCheck": flag(true), "adaptiveRouting": flag(true),
			},
			ConfigSchema: []schema.ConfigField{
				selectField("algorithm", "Routing algorithm", "latency",
					"Latency first", "latency", "Bandwidth first", "bandwidth", "Combined score", "combined"),
				boolField("healthCheck", "Health check", true),
				boolField("adaptiveRouting", "Adaptive routing", true),
			},
			Outputs: []schema.OutputPort{
				port("optimized", "Optimized", schema.OutputSuccess, colorSuccess, "Route optimized"),
				port("degraded", "Degraded", schema.OutputWarning, colorWarning, "Degraded mode"),
			},
		},
		{
			Type: TypeFailover, Label: "Failover",
			Description: "Switches to backup servers when the primary fails",
			Category:    schema.CategoryRouting, Icon: "repeat", Color: "#3b82f6",
			DefaultConfig: schema.Config{
				"timeout": num(5000), "retries": num(3), "backupServers": list(),
			},
			ConfigSchema: []schema.ConfigField{
				numberField("timeout", "Timeout (ms)", bound(1000), bound(30000), 5000),
				numberField("retries", "Retries", bound(1), bound(10), 3),
			},
			Outputs: []schema.OutputPort{
				port("primary", "Primary", schema.OutputSuccess, colorSuccess, "Primary server healthy"),
				port("failover", "Failover", schema.OutputWarning, colorWarning, "Switched to backup server"),
			},
		},
		{
			Type: TypeEndUser, Label: "End User",
			Description: "The user who finally receives the content",
			Provider:    schema.ProviderGeneric, Category: schema.CategoryDestination, Icon: "user", Color: "#64748b",
			DefaultConfig: schema.Config{},
			ConfigSchema:  []schema.ConfigField{},
			Outputs:       []schema.OutputPort{},
		},
	}
}
