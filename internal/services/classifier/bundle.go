package classifier

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"gonum.org/v1/gonum/mat"
)

const (
	manifestFile = "manifest.json"
	networkFile  = "network.json"
	scalerFile   = "scaler.json"
)

type layerFile struct {
	Inputs     int        `json:"inputs"`
	Outputs    int        `json:"outputs"`
	Activation Activation `json:"activation"`
	Weights    []float64  `json:"weights"`
	Bias       []float64  `json:"bias"`
}

type networkDoc struct {
	Layers []layerFile `json:"layers"`
}

// SaveBundle writes the manifest, network and scaler into dir.
func SaveBundle(dir string, m *Model) error {
	if m.Network == nil || m.Scaler == nil {
		return ErrNotFitted
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create bundle dir: %w", err)
	}

	doc := networkDoc{}
	for _, l := range m.Network.Layers {
		doc.Layers = append(doc.Layers, layerFile{
			Inputs:     l.Inputs(),
			Outputs:    l.Outputs(),
			Activation: l.Activation,
			Weights:    mat.DenseCopyOf(l.W).RawMatrix().Data,
			Bias:       l.B,
		})
	}

	files := map[string]interface{}{
		manifestFile: m.Manifest,
		networkFile:  doc,
		scalerFile:   m.Scaler,
	}
	for name, v := range files {
		if err := writeJSON(filepath.Join(dir, name), v); err != nil {
			return err
		}
	}
	return nil
}

// LoadBundle reads a bundle written by SaveBundle.
func LoadBundle(dir string) (*Model, error) {
	m := &Model{Scaler: &Scaler{}}
	if err := readJSON(filepath.Join(dir, manifestFile), &m.Manifest); err != nil {
		return nil, err
	}
	if err := readJSON(filepath.Join(dir, scalerFile), m.Scaler); err != nil {
		return nil, err
	}
	var doc networkDoc
	if err := readJSON(filepath.Join(dir, networkFile), &doc); err != nil {
		return nil, err
	}

	net := &Network{}
	for i, lf := range doc.Layers {
		if len(lf.Weights) != lf.Inputs*lf.Outputs || len(lf.Bias) != lf.Outputs || lf.Inputs == 0 || lf.Outputs == 0 {
			return nil, fmt.Errorf("layer %d: %w", i, ErrShapeMismatch)
		}
		net.Layers = append(net.Layers, &Dense{
			Activation: lf.Activation,
			W:          mat.NewDense(lf.Inputs, lf.Outputs, lf.Weights),
			B:          lf.Bias,
		})
	}
	m.Network = net

	if net.Inputs() != m.Scaler.Width() || net.Inputs() != len(m.Manifest.Columns) {
		return nil, fmt.Errorf("bundle inputs disagree (network %d, scaler %d, columns %d): %w",
			net.Inputs(), m.Scaler.Width(), len(m.Manifest.Columns), ErrShapeMismatch)
	}
	if net.Outputs() != len(m.Manifest.Vocabulary) {
		return nil, fmt.Errorf("bundle outputs disagree (network %d, vocabulary %d): %w",
			net.Outputs(), len(m.Manifest.Vocabulary), ErrShapeMismatch)
	}
	return m, nil
}

func writeJSON(path string, v interface{}) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return nil
}

func readJSON(path string, v interface{}) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return nil
}
