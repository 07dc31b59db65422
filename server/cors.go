package server

import (
	"errors"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"io/fs"
	"os"
)

// corsConfig allows every origin unless the marker file exists, in which case
// only localOrigin may call the API. The marker is checked once at startup.
func corsConfig(markerPath, localOrigin string) (cors.Config, bool, error) {
	cfg := cors.Config{
		AllowMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"},
		AllowHeaders: []string{"*"},
	}

	_, err := os.Stat(markerPath)
	switch {
	case err == nil:
		cfg.AllowOrigins = []string{localOrigin}
		return cfg, true, nil
	case errors.Is(err, fs.ErrNotExist):
		cfg.AllowAllOrigins = true
		return cfg, false, nil
	default:
		return cors.Config{}, false, err
	}
}

func corsMiddleware(markerPath, localOrigin string) (gin.HandlerFunc, bool, error) {
	cfg, restricted, err := corsConfig(markerPath, localOrigin)
	if err != nil {
		return nil, false, err
	}
	return cors.New(cfg), restricted, nil
}
