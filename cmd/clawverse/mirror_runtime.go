package main

import (
	"fmt"

	"go.uber.org/zap"

	"clawverse.ai/internal/persistence/mirror"
)

// buildMirror returns nil when CV_MIRROR is off.
func buildMirror(dataDir string, logger *zap.Logger) (*mirror.Mirror, error) {
	if !envBool("CV_MIRROR", false) {
		return nil, nil
	}
	cfg := mirror.Config{
		Endpoint:        envString("CV_MIRROR_ENDPOINT", ""),
		Region:          envString("CV_MIRROR_REGION", "auto"),
		Bucket:          envString("CV_MIRROR_BUCKET", ""),
		AccessKeyID:     envString("CV_MIRROR_ACCESS_KEY_ID", ""),
		SecretAccessKey: envString("CV_MIRROR_SECRET_ACCESS_KEY", ""),
	}
	client, err := mirror.NewS3Client(cfg)
	if err != nil {
		return nil, fmt.Errorf("CV_MIRROR=true: %w", err)
	}
	return mirror.New(client, mirror.Options{
		Bucket:  cfg.Bucket,
		DataDir: dataDir,
		Prefix:  envString("CV_MIRROR_PREFIX", ""),
		Workers: envInt("CV_MIRROR_WORKERS", 2),
		Logger:  logger,
	}), nil
}
