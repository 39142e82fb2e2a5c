package router

import (
	_ "embed"
	"net/http"

	"github.com/erp/stockflow/internal/infrastructure/config"
	"github.com/erp/stockflow/internal/infrastructure/logger"
	"github.com/erp/stockflow/internal/interfaces/http/handler"
	"github.com/erp/stockflow/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"github.com/swaggo/swag/v2"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

//go:embed openapi.yaml
var openAPISpec []byte

// OpenAPIPath serves the embedded OpenAPI document
const OpenAPIPath = "/openapi.yaml"

// openAPIDoc feeds the embedded document to the swag registry, which
// gin-swagger reads for /swagger/doc.json
type openAPIDoc struct{}

func (openAPIDoc) ReadDoc() string { return string(openAPISpec) }

func init() {
	swag.Register(swag.Name, openAPIDoc{})
}

// Options carries what NewEngine wires together
type Options struct {
	Config        *config.Config
	Logger        *zap.Logger
	Authenticator middleware.Authenticator
	// Meter records HTTP metrics; nil disables them
	Meter metric.Meter

	Inventory *handler.InventoryHandler
	Transfers *handler.TransferHandler
	Rules     *handler.ApprovalRuleHandler
	System    *handler.SystemHandler
}

// NewEngine builds the gin engine: global middleware, system routes and the
// authenticated /api/v1 group.
func NewEngine(opts Options) (*gin.Engine, error) {
	cfg := opts.Config
	log := opts.Logger

	if err := middleware.SetupValidator(); err != nil {
		return nil, err
	}

	engine := gin.New()
	if len(cfg.HTTP.TrustedProxies) > 0 {
		if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
			log.Warn("Failed to set trusted proxies", zap.Error(err))
		}
	}

	engine.Use(
		middleware.RequestID(),
		logger.AccessLog(log, "/health"),
		logger.Recovery(log),
		middleware.Tracing(cfg.Telemetry.ServiceName, cfg.Telemetry.Enabled),
		middleware.Secure(),
		middleware.CORS(middleware.CORSConfigFrom(cfg.HTTP)),
		middleware.BodyLimit(cfg.HTTP.MaxBodySize),
		middleware.Timeout(cfg.HTTP.WriteTimeout),
	)
	if opts.Meter != nil {
		metrics, err := middleware.HTTPMetrics(opts.Meter)
		if err != nil {
			return nil, err
		}
		engine.Use(metrics)
	}

	engine.GET("/health", opts.System.Health)
	docs := engine.Group("", middleware.SwaggerProtection(cfg.Swagger))
	docs.GET(OpenAPIPath, func(c *gin.Context) {
		c.Data(http.StatusOK, "application/yaml", openAPISpec)
	})
	docs.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	r := NewRouter(engine, WithAPIVersion("v1"))
	r.Use(
		middleware.Authenticate(opts.Authenticator, log),
		middleware.SpanAnnotator(),
		middleware.Profiling(cfg.Telemetry.ProfilingEnabled),
	)
	r.Register(InventoryRoutes(opts.Inventory)).
		Register(TransferRoutes(opts.Transfers)).
		Register(ApprovalRuleRoutes(opts.Rules))
	r.Setup()

	return engine, nil
}
