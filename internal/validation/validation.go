package validation

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/br0z1/social-media-app/internal/logger"
)

// Services that can be marked required with SPHERES_REQUIRE_<NAME>.
const (
	ServiceDatabase = "database"
	ServiceRedis    = "redis"
	ServiceS3       = "s3"
)

const checkTimeout = 10 * time.Second

// CheckFunc reports whether a backing service is usable
type CheckFunc func(ctx context.Context) error

// ServiceValidator handles validation of optional services. Redis and S3
// degrade gracefully at runtime; marking them required turns a failed
// check into a startup error.
type ServiceValidator struct {
	requiredServices []string
	checks           map[string]CheckFunc
}

// NewServiceValidator creates a validator for the given required services
func NewServiceValidator(required []string) *ServiceValidator {
	return &ServiceValidator{
		requiredServices: required,
		checks:           make(map[string]CheckFunc),
	}
}

// Register adds the check for a service
func (sv *ServiceValidator) Register(service string, check CheckFunc) {
	sv.checks[service] = check
}

// ValidateServices runs the check of every required service
func (sv *ServiceValidator) ValidateServices(ctx context.Context) error {
	if len(sv.requiredServices) == 0 {
		logger.Log.Info("No required services configured for validation")
		return nil
	}

	logger.Log.Info("🔍 Validating required services",
		zap.Strings("services", sv.requiredServices),
	)

	for _, serviceName := range sv.requiredServices {
		check, ok := sv.checks[serviceName]
		if !ok {
			return fmt.Errorf("required service %q has no check registered", serviceName)
		}

		timeoutCtx, cancel := context.WithTimeout(ctx, checkTimeout)
		err := check(timeoutCtx)
		cancel()
		if err != nil {
			logger.Log.Error("❌ Required service validation failed",
				zap.String("service", serviceName),
				zap.Error(err),
			)
			return fmt.Errorf("required service %q validation failed: %w", serviceName, err)
		}

		logger.Log.Info("✅ Service validated successfully",
			zap.String("service", serviceName),
		)
	}

	logger.Log.Info("✅ All required services validated successfully")
	return nil
}

// RequiredFromEnv parses the SPHERES_REQUIRE_* environment variables
func RequiredFromEnv() []string {
	var required []string
	for _, service := range []string{ServiceDatabase, ServiceRedis, ServiceS3} {
		envVar := "SPHERES_REQUIRE_" + strings.ToUpper(service)
		if isTruthy(os.Getenv(envVar)) {
			required = append(required, service)
		}
	}
	sort.Strings(required)
	return required
}

// isTruthy checks if a string value represents a truthy value
func isTruthy(value string) bool {
	value = strings.ToLower(strings.TrimSpace(value))
	return value == "1" || value == "true" || value == "yes" || value == "on"
}
