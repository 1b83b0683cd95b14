package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"

	"palettestudio/llm"
	"palettestudio/models"
	"palettestudio/services"

	"github.com/gin-gonic/gin"
)

var ErrUpstreamFormat = errors.New("model returned an invalid palette response")

type entitlementChecker interface {
	IsEntitled(ctx context.Context, userID string) (bool, error)
}

type quotaReserver interface {
	Reserve(ctx context.Context, userID string) error
}

type textGenerator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

type PaletteHandler struct {
	subs  entitlementChecker
	quota quotaReserver
	model textGenerator
}

func NewPaletteHandler(subs entitlementChecker, quota quotaReserver, model textGenerator) *PaletteHandler {
	return &PaletteHandler{subs: subs, quota: quota, model: model}
}

type generateInput struct {
	Prompt string `json:"prompt"`
}

const paletteInstructions = `You are a professional interior designer and color expert. Generate Pantone color palettes for the following brief:

Brief: %s

Recommend 3 distinct palettes in the following JSON format. Each palette must contain exactly 5 Pantone colors:

[
  {
    "paletteName": "palette name",
    "description": "2-3 sentences describing the character of this palette",
    "colors": [
      {
        "name": "Pantone color name",
        "pantoneCode": "Pantone code (e.g. PANTONE 19-4052)",
        "hex": "#hexcode",
        "usage": "recommended use for this color",
        "description": "color description"
      }
    ]
  }
]

Important: return ONLY a valid JSON array, with no additional text or markdown.`

// Generate produces color palettes for a free-text brief. It requires an
// entitled caller and an available quota slot, checked in that order
// before the model is invoked. Upstream format errors are terminal; the
// call is never retried.
func (h *PaletteHandler) Generate(c *gin.Context) {
	userID := c.GetString("userID")

	entitled, err := h.subs.IsEntitled(c.Request.Context(), userID)
	if err != nil {
		log.Printf("entitlement check failed for %s: %v", userID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to verify subscription"})
		return
	}
	if !entitled {
		c.JSON(http.StatusForbidden, gin.H{"error": "An active subscription is required"})
		return
	}

	var input generateInput
	if err := c.ShouldBindJSON(&input); err != nil || strings.TrimSpace(input.Prompt) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Prompt is required"})
		return
	}

	if err := h.quota.Reserve(c.Request.Context(), userID); err != nil {
		if errors.Is(err, services.ErrQuotaExceeded) {
			c.JSON(http.StatusForbidden, gin.H{"error": "Monthly generation quota exceeded"})
			return
		}
		log.Printf("quota reservation failed for %s: %v", userID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to check quota"})
		return
	}

	raw, err := h.model.Generate(c.Request.Context(), fmt.Sprintf(paletteInstructions, strings.TrimSpace(input.Prompt)))
	if err != nil {
		log.Printf("palette generation failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Palette generation failed"})
		return
	}

	palettes, err := parsePalettes(raw)
	if err != nil {
		log.Printf("palette parse failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Palette generation failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"palettes": palettes})
}

// parsePalettes strips code fences, parses the model output, and rejects
// anything that is not a non-empty array of palettes with colors.
func parsePalettes(raw string) ([]models.Palette, error) {
	cleaned := llm.StripFences(raw)

	var palettes []models.Palette
	if err := json.Unmarshal([]byte(cleaned), &palettes); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstreamFormat, err)
	}
	if len(palettes) == 0 {
		return nil, fmt.Errorf("%w: empty array", ErrUpstreamFormat)
	}
	for _, p := range palettes {
		if len(p.Colors) == 0 {
			return nil, fmt.Errorf("%w: palette %q has no colors", ErrUpstreamFormat, p.PaletteName)
		}
	}
	return palettes, nil
}
