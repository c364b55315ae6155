// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package peft provides the public API for converting HuggingFace PEFT
// adapter files into this framework's naming and orientation convention.
package peft

import (
	"github.com/born-ml/lora/internal/peft"
	"github.com/born-ml/lora/tensor"
)

// Errors returned by the converter.
var (
	ErrInvalidAdapterFile = peft.ErrInvalidAdapterFile
	ErrUnknownLayerShape  = peft.ErrUnknownLayerShape
)

// Config mirrors adapter_config.json.
type Config = peft.Config

// LoadConfig reads and validates an adapter_config.json file.
func LoadConfig(path string) (*Config, error) {
	return peft.LoadConfig(path)
}

// Role is the architectural role a weight key is classified into.
type Role = peft.Role

// Roles recognized by the default classification table.
const (
	RoleUnclassified Role = peft.RoleUnclassified
	RoleEmbedding    Role = peft.RoleEmbedding
	RoleAttention    Role = peft.RoleAttention
	RoleFeedForward  Role = peft.RoleFeedForward
)

// Rule matches a base module path against substring markers.
type Rule = peft.Rule

// Table is an ordered list of classification rules.
type Table = peft.Table

// DefaultTable returns the classification rules for LLaMA-family naming.
func DefaultTable() Table {
	return peft.DefaultTable()
}

// Convert converts a PEFT SafeTensors file, emitting every weight pair under
// the single given prefix.
func Convert(peftPath, outputPath, prefix string, device tensor.Device) error {
	return peft.Convert(peftPath, outputPath, prefix, device)
}

// ConvertDir converts a PEFT adapter directory, reading adapter_config.json
// when present.
func ConvertDir(peftDir, outputPath, prefix string, device tensor.Device) error {
	return peft.ConvertDir(peftDir, outputPath, prefix, device)
}

// ConvertTyped converts a PEFT SafeTensors file with role classification:
// each layer's keys are prefixed by its architectural role under the model
// tag, and zero dummy embedding factors are inserted when requested and
// absent.
func ConvertTyped(peftPath, outputPath, tag string, device tensor.Device, addDummyEmbeddings bool) error {
	return peft.ConvertTyped(peftPath, outputPath, tag, device, addDummyEmbeddings)
}

// ConvertTypedWithTable is ConvertTyped with a caller-supplied table.
func ConvertTypedWithTable(peftPath, outputPath, tag string, device tensor.Device, addDummyEmbeddings bool, table Table) error {
	return peft.ConvertTypedWithTable(peftPath, outputPath, tag, device, addDummyEmbeddings, table)
}

// ConvertDirTyped converts a PEFT adapter directory with role
// classification.
func ConvertDirTyped(peftDir, outputPath, tag string, device tensor.Device, addDummyEmbeddings bool) error {
	return peft.ConvertDirTyped(peftDir, outputPath, tag, device, addDummyEmbeddings)
}

// ConvertDirTypedWithTable is ConvertDirTyped with a caller-supplied table.
func ConvertDirTypedWithTable(peftDir, outputPath, tag string, device tensor.Device, addDummyEmbeddings bool, table Table) error {
	return peft.ConvertDirTypedWithTable(peftDir, outputPath, tag, device, addDummyEmbeddings, table)
}
