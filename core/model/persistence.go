package model

import (
	"encoding/gob"
	"io"

	"github.com/YuminosukeSato/mlpipe/pkg/errors"
)

// Register makes a concrete estimator or transformer type known to the
// codec so that it can be stored behind an interface. Every estimator
// package registers its types in init.
func Register(value interface{}) {
	gob.Register(value)
}

// estimatorEnvelope carries an Estimator through gob. The interface field
// makes gob write the concrete type name.
type estimatorEnvelope struct {
	Estimator Estimator
}

// SaveModelToWriter gob-encodes model to w.
func SaveModelToWriter(model interface{}, w io.Writer) error {
	if err := gob.NewEncoder(w).Encode(model); err != nil {
		return errors.Wrap(err, "failed to encode model")
	}
	return nil
}

// LoadModelFromReader gob-decodes into model, which must be a pointer.
func LoadModelFromReader(model interface{}, r io.Reader) error {
	if err := gob.NewDecoder(r).Decode(model); err != nil {
		return errors.Wrap(err, "failed to decode model")
	}
	return nil
}

// EncodeEstimator writes est so that DecodeEstimator can restore it without
// knowing its concrete type. The type must have been registered.
func EncodeEstimator(est Estimator, w io.Writer) error {
	if est == nil {
		return errors.NewValueError("EncodeEstimator", "estimator is nil")
	}
	return SaveModelToWriter(&estimatorEnvelope{Estimator: est}, w)
}

// DecodeEstimator reads an estimator written by EncodeEstimator.
func DecodeEstimator(r io.Reader) (Estimator, error) {
	var env estimatorEnvelope
	if err := LoadModelFromReader(&env, r); err != nil {
		return nil, err
	}
	if env.Estimator == nil {
		return nil, errors.NewValueError("DecodeEstimator", "stream holds no estimator")
	}
	return env.Estimator, nil
}
