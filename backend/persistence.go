package main

import (
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
)

var dockerDataDir = "/data"

// resolveModelPath keeps absolute paths as-is and places relative paths in
// the docker data volume when it exists.
func resolveModelPath(path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	if stat, err := os.Stat(dockerDataDir); err == nil && stat.IsDir() {
		return filepath.Join(dockerDataDir, path)
	}
	return path
}

// LoadModel restores weights from the artifact at path. A missing or
// unreadable artifact is not an error: the model keeps its fresh random
// initialization.
func LoadModel(path string, model *Model) {
	resolved := resolveModelPath(path)
	file, err := os.Open(resolved)
	if err != nil {
		if os.IsNotExist(err) {
			log.Info().Str("path", resolved).Msg("no existing model, starting fresh")
			return
		}
		log.Warn().Err(err).Str("path", resolved).Msg("model load failed, starting fresh")
		return
	}
	defer file.Close()
	if err := model.Restore(file); err != nil {
		log.Warn().Err(err).Str("path", resolved).Msg("model decode failed, starting fresh")
		return
	}
	log.Info().Str("path", resolved).Msg("model loaded")
}

// SaveModel writes the weights to a temp file in the target directory and
// renames it over the artifact, so a concurrent load never observes a
// half-written file.
func SaveModel(path string, model *Model) error {
	resolved := resolveModelPath(path)
	dir := filepath.Dir(resolved)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}

	snapshot, err := model.Snapshot()
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(resolved)+".tmp-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(snapshot); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), resolved); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return nil
}
