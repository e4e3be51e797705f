package embedserver

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/klauspost/compress/zstd"
	"github.com/rs/zerolog/log"

	"github.com/tensorplex-labs/drsweep/internal/embedding"
)

// ZstdMiddleware decompresses zstd request bodies and compresses responses
// for clients that accept zstd. Whitelisted routes pass through untouched.
func ZstdMiddleware(whitelistedRoutes []string) fiber.Handler {
	if whitelistedRoutes == nil {
		whitelistedRoutes = []string{HealthPath}
	}

	decoder, err := zstd.NewReader(nil)
	if err != nil {
		panic(fmt.Sprintf("create zstd decoder: %v", err))
	}
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic(fmt.Sprintf("create zstd encoder: %v", err))
	}

	return func(c *fiber.Ctx) error {
		if slices.Contains(whitelistedRoutes, c.Path()) {
			return c.Next()
		}

		if strings.EqualFold(c.Get(fiber.HeaderContentEncoding), "zstd") {
			if body := c.Body(); len(body) > 0 {
				decompressed, err := decoder.DecodeAll(body, nil)
				if err != nil {
					log.Err(err).Msg("failed to decompress request")
					return c.Status(fiber.StatusBadRequest).JSON(
						embedding.NewResponse(map[string]any{}, fmt.Errorf("failed to decompress zstd data: %w", err)))
				}
				c.Request().SetBody(decompressed)
				c.Request().Header.Del(fiber.HeaderContentEncoding)
			}
		}

		if err := c.Next(); err != nil {
			return err
		}

		if strings.Contains(strings.ToLower(c.Get(fiber.HeaderAcceptEncoding)), "zstd") {
			body := c.Response().Body()
			if len(body) > 0 {
				compressed := encoder.EncodeAll(body, nil)
				c.Response().SetBody(compressed)
				c.Set(fiber.HeaderContentEncoding, "zstd")
				c.Set(fiber.HeaderContentLength, strconv.Itoa(len(compressed)))

				log.Trace().
					Int("original_size", len(body)).
					Int("compressed_size", len(compressed)).
					Msg("response body compressed")
			}
		}
		return nil
	}
}
