package wiki

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type SeedFile struct {
	Articles []NewArticle `yaml:"articles"`
}

func LoadSeed(path string) ([]NewArticle, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f SeedFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("seed.yaml: %w", err)
	}
	return f.Articles, nil
}

// Seed reseeds every article and returns how many were written.
func Seed(ctx context.Context, s Store, articles []NewArticle) (int, error) {
	n := 0
	for _, in := range articles {
		if _, err := s.Reseed(ctx, in); err != nil {
			return n, fmt.Errorf("seed %q: %w", in.Slug, err)
		}
		n++
	}
	return n, nil
}
