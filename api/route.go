package api

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"haruki-vroid-deobfuscator/config"
	"haruki-vroid-deobfuscator/deobfuscator"
	"haruki-vroid-deobfuscator/job"
	"haruki-vroid-deobfuscator/utils"
	harukiLogger "haruki-vroid-deobfuscator/utils/logger"

	"github.com/gofiber/fiber/v3"
)

var logger = harukiLogger.NewLogger("HarukiVRoidAPI", "INFO", nil)

// runJob starts a deobfuscation job in a goroutine
func runJob(cfg config.Config, payload job.Payload) {
	go func() {
		opts := job.Options{
			UseCache:        !payload.NoCache,
			DownloadMotions: cfg.Hub.DownloadMotions,
			DisplayName:     payload.DisplayName,
		}
		if payload.DownloadMotions != nil {
			opts.DownloadMotions = *payload.DownloadMotions
		}
		deobfuscateJob := job.NewHarukiVRoidDeobfuscateJob(context.Background(), cfg)
		defer deobfuscateJob.Close()
		if _, err := deobfuscateJob.Run(payload.Target, opts); err != nil {
			logger.Errorf("Deobfuscation of %s failed: %v", payload.Target, err)
		}
	}()
}

// RegisterRoutes registers all API routes
func RegisterRoutes(app *fiber.App) {
	app.Post("/deobfuscate", deobfuscateHandler)
	app.Post("/deobfuscate/upload", uploadHandler)
}

// authorize writes a 401 response and returns false when the request is rejected.
func authorize(c fiber.Ctx) (bool, error) {
	if !config.Cfg.Backend.EnableAuthorization {
		return true, nil
	}
	if config.Cfg.Backend.AcceptUserAgentPrefix != "" {
		userAgent := c.Get("User-Agent")
		if !strings.HasPrefix(userAgent, config.Cfg.Backend.AcceptUserAgentPrefix) {
			return false, c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"message": "Invalid User-Agent",
			})
		}
	}
	if config.Cfg.Backend.AcceptAuthorizationToken != "" {
		authHeader := c.Get("Authorization")
		expectedAuth := "Bearer " + config.Cfg.Backend.AcceptAuthorizationToken
		if authHeader != expectedAuth {
			return false, c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"message": "Invalid authorization token",
			})
		}
	}
	return true, nil
}

func deobfuscateHandler(c fiber.Ctx) error {
	if ok, err := authorize(c); !ok {
		return err
	}

	var payload job.Payload
	if err := c.Bind().Body(&payload); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": "Invalid request payload",
			"error":   err.Error(),
		})
	}
	id, err := utils.ParseTarget(payload.Target)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": "Invalid target",
			"error":   err.Error(),
		})
	}

	runJob(config.Cfg, payload)

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"message": "Deobfuscation started",
		"id":      id,
	})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, job.ErrInvalidContainer):
		return fiber.StatusBadRequest
	case errors.Is(err, deobfuscator.ErrMissingMarker),
		errors.Is(err, deobfuscator.ErrSeedNotFound),
		errors.Is(err, deobfuscator.ErrUnsupportedVersion),
		errors.Is(err, deobfuscator.ErrInvalidAssetID),
		errors.Is(err, deobfuscator.ErrExpanderUnavailable):
		return fiber.StatusUnprocessableEntity
	}
	return fiber.StatusInternalServerError
}

// uploadHandler deobfuscates the decrypted container in the request body and
// returns the result.
func uploadHandler(c fiber.Ctx) error {
	if ok, err := authorize(c); !ok {
		return err
	}

	id, err := utils.ParseTarget(c.Query("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": "Invalid model id",
			"error":   err.Error(),
		})
	}
	body := c.Body()
	if len(body) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": "Empty container",
		})
	}
	container := make([]byte, len(body))
	copy(container, body)

	deobfuscateJob := job.NewHarukiVRoidDeobfuscateJob(c.Context(), config.Cfg)
	defer deobfuscateJob.Close()
	result, err := deobfuscateJob.Process(id, c.Query("url"), container, c.Query("name"))
	if err != nil {
		logger.Warnf("Deobfuscation of uploaded model %s failed: %v", id, err)
		return c.Status(statusFor(err)).JSON(fiber.Map{
			"message": "Deobfuscation failed",
			"error":   err.Error(),
		})
	}

	c.Set(fiber.HeaderContentType, "model/gltf-binary")
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", utils.OutputFileName(id, result.DisplayName)))
	return c.Status(fiber.StatusOK).Send(result.Data)
}
