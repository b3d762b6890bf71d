package model

import (
	"encoding/gob"
	"io"
	"os"

	"github.com/YuminosukeSato/exoplanet-classifier/pkg/errors"
)

// SaveModel gob-encodes model into filename.
//
//	forest := ensemble.NewRandomForestClassifier()
//	// ... fit ...
//	err := model.SaveModel(forest, "trained_model.gob")
func SaveModel(model interface{}, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return errors.Wrapf(err, "failed to create %s", filename)
	}
	if err := SaveModelToWriter(model, file); err != nil {
		file.Close()
		return err
	}
	if err := file.Sync(); err != nil {
		file.Close()
		return errors.Wrapf(err, "failed to sync %s", filename)
	}
	return file.Close()
}

// LoadModel decodes filename into model, which must be a pointer.
// A missing file is reported as os.ErrNotExist in the chain.
func LoadModel(model interface{}, filename string) error {
	file, err := os.Open(filename)
	if err != nil {
		return errors.Wrapf(err, "failed to open %s", filename)
	}
	defer file.Close()
	return LoadModelFromReader(model, file)
}

// SaveModelToWriter gob-encodes model into w.
func SaveModelToWriter(model interface{}, w io.Writer) error {
	if err := gob.NewEncoder(w).Encode(model); err != nil {
		return errors.Wrap(err, "failed to encode model")
	}
	return nil
}

// LoadModelFromReader decodes a gob-encoded model from r.
func LoadModelFromReader(model interface{}, r io.Reader) error {
	if err := gob.NewDecoder(r).Decode(model); err != nil {
		return errors.Wrap(err, "failed to decode model")
	}
	return nil
}
