// Package json persists completed batches as versioned JSON files.
package json

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fwojciec/phototag"
)

// envelope is the v1 wire format for a persisted batch.
type envelope struct {
	Version   int        `json:"version"`
	ID        string     `json:"id"`
	CreatedAt time.Time  `json:"created_at"`
	Files     []string   `json:"files"`
	Images    []imageDTO `json:"images"`
}

type imageDTO struct {
	ID          string   `json:"id,omitempty"`
	Filename    string   `json:"filename"`
	Title       string   `json:"title,omitempty"`
	Description string   `json:"description,omitempty"`
	Keywords    []string `json:"keywords,omitempty"`
	Error       *string  `json:"error,omitempty"`
}

// MarshalBatch serializes a Batch to JSON in v1 envelope format.
func MarshalBatch(b phototag.Batch) ([]byte, error) {
	env := envelope{
		Version:   1,
		ID:        b.ID,
		CreatedAt: b.CreatedAt,
		Files:     b.Files,
		Images:    make([]imageDTO, len(b.Result.Images)),
	}
	if env.Files == nil {
		env.Files = []string{}
	}
	for i, img := range b.Result.Images {
		env.Images[i] = marshalImage(img)
	}
	return json.MarshalIndent(env, "", "  ")
}

// UnmarshalBatch deserializes a Batch from JSON in v1 envelope format.
func UnmarshalBatch(data []byte) (phototag.Batch, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return phototag.Batch{}, fmt.Errorf("unmarshal envelope: %w", err)
	}
	if env.Version != 1 {
		return phototag.Batch{}, fmt.Errorf("unsupported envelope version: %d", env.Version)
	}
	images := make([]phototag.ImageResult, len(env.Images))
	for i, dto := range env.Images {
		if dto.Filename == "" {
			return phototag.Batch{}, fmt.Errorf("image %d: missing filename", i)
		}
		images[i] = unmarshalImage(dto)
	}
	return phototag.Batch{
		ID:        env.ID,
		CreatedAt: env.CreatedAt,
		Files:     env.Files,
		Result:    phototag.BatchResult{Images: images},
	}, nil
}

// Save writes a Batch to a JSON file, creating parent directories as needed.
func Save(path string, b phototag.Batch) error {
	data, err := MarshalBatch(b)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create directories: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}

// Load reads a Batch from a JSON file.
func Load(path string) (phototag.Batch, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return phototag.Batch{}, fmt.Errorf("read file: %w", err)
	}
	return UnmarshalBatch(data)
}

func marshalImage(img phototag.ImageResult) imageDTO {
	dto := imageDTO{
		ID:          img.ID,
		Filename:    img.Filename,
		Title:       img.Title,
		Description: img.Description,
		Keywords:    img.Keywords,
	}
	if img.Error != "" {
		dto.Error = &img.Error
	}
	return dto
}

func unmarshalImage(dto imageDTO) phototag.ImageResult {
	img := phototag.ImageResult{
		ID:          dto.ID,
		Filename:    dto.Filename,
		Title:       dto.Title,
		Description: dto.Description,
		Keywords:    dto.Keywords,
	}
	if dto.Error != nil {
		img.Error = *dto.Error
	}
	return img
}
