package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"

	"palettestudio/llm"
	"palettestudio/models"
	"palettestudio/photos"

	"github.com/gin-gonic/gin"
)

const (
	maxSearchQueries = 5
	targetImageCount = 4
	maxImageResults  = 5
)

// fallbackQueries are used when every model-derived query comes back empty.
var fallbackQueries = []string{
	"modern interior design living room",
	"contemporary home decor bedroom",
	"minimalist apartment interior",
	"scandinavian home design",
	"luxury interior design",
}

type photoSearcher interface {
	Search(ctx context.Context, query string, perPage int) ([]photos.Photo, error)
}

type ImageHandler struct {
	model  textGenerator
	photos photoSearcher
}

func NewImageHandler(model textGenerator, searcher photoSearcher) *ImageHandler {
	return &ImageHandler{model: model, photos: searcher}
}

type searchInput struct {
	PaletteName string         `json:"paletteName" binding:"required"`
	Description string         `json:"description"`
	Colors      []models.Color `json:"colors" binding:"required"`
}

type searchQuery struct {
	Query       string `json:"query"`
	Description string `json:"description"`
}

type searchQueries struct {
	Searches []searchQuery `json:"searches"`
}

const searchInstructions = `You are an interior design image search expert. Based on the following color palette, generate search queries to find relevant INTERIOR DESIGN and HOME DECOR images only.

Palette Name: %s
Palette Description: %s
Colors Used: %s

Generate 5 specific English search queries focused on interior design, home decor, living spaces, furniture, and room design. Each query must include interior design keywords.

Return JSON format:

{
  "searches": [
    {
      "query": "specific interior design search query",
      "description": "room or design type description"
    }
  ]
}

Return ONLY valid JSON, no additional text.`

// Search finds stock photos matching a generated palette: the model
// derives up to 5 targeted queries, and we take at most one photo per
// query until 4 are collected. A fixed fallback list covers the case
// where every derived query comes back empty.
func (h *ImageHandler) Search(c *gin.Context) {
	var input searchInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Palette information is required"})
		return
	}

	colorDescs := make([]string, 0, len(input.Colors))
	for _, col := range input.Colors {
		colorDescs = append(colorDescs, fmt.Sprintf("%s(%s)", col.Name, col.Hex))
	}

	prompt := fmt.Sprintf(searchInstructions, input.PaletteName, input.Description, strings.Join(colorDescs, ", "))
	raw, err := h.model.Generate(c.Request.Context(), prompt)
	if err != nil {
		log.Printf("search query generation failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Image search failed"})
		return
	}

	var queries searchQueries
	if err := json.Unmarshal([]byte(llm.StripFences(raw)), &queries); err != nil {
		log.Printf("search query parse failed: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Could not generate search queries"})
		return
	}
	if len(queries.Searches) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Could not generate search queries"})
		return
	}

	if len(queries.Searches) > maxSearchQueries {
		queries.Searches = queries.Searches[:maxSearchQueries]
	}

	images := h.collect(c.Request.Context(), queries.Searches)

	if len(images) == 0 {
		fallback := make([]searchQuery, 0, len(fallbackQueries))
		for _, q := range fallbackQueries {
			fallback = append(fallback, searchQuery{Query: q, Description: "Interior design inspiration"})
		}
		images = h.collect(c.Request.Context(), fallback)
	}

	if len(images) > maxImageResults {
		images = images[:maxImageResults]
	}

	c.JSON(http.StatusOK, gin.H{
		"paletteName": input.PaletteName,
		"images":      images,
	})
}

// collect takes at most one photo per query, stopping once enough images
// are gathered. Per-query failures are logged and skipped.
func (h *ImageHandler) collect(ctx context.Context, queries []searchQuery) []models.PaletteImage {
	images := make([]models.PaletteImage, 0, targetImageCount)

	for _, q := range queries {
		results, err := h.photos.Search(ctx, q.Query, 2)
		if err != nil {
			log.Printf("photo search failed for %q: %v", q.Query, err)
			continue
		}
		if len(results) == 0 {
			continue
		}

		photo := results[0]
		photographer := photo.Photographer
		if photographer == "" {
			photographer = "Unknown"
		}
		photographerURL := photo.PhotographerURL
		if photographerURL == "" {
			photographerURL = "#"
		}

		images = append(images, models.PaletteImage{
			URL:             photo.BestURL(),
			Alt:             q.Description,
			Photographer:    photographer,
			PhotographerURL: photographerURL,
			Source:          "Pexels",
		})

		if len(images) >= targetImageCount {
			break
		}
	}
	return images
}
