package serialization

import (
	"time"
)

// Format constants.
const (
	MagicBytes      = "BORN"
	FormatVersion   = 2    // With SHA-256 checksum
	HeaderAlignment = 64   // Align tensor data to 64 bytes
	FixedHeaderSize = 64   // Fixed header size (0x40 bytes)
	ChecksumSize    = 32   // SHA-256 checksum size
	ChecksumOffset  = 0x20 // Checksum offset in the fixed header
)

// Flags for the .born format.
const (
	FlagHasOptimizer uint32 = 1 << 1 // optimizer state included
	FlagHasMetadata  uint32 = 1 << 2 // custom metadata included
	FlagHasScheduler uint32 = 1 << 3 // scheduler state included
)

// Producer identifies the writer in every header.
const Producer = "born-vision/0.1.0"

// Header represents the JSON header in a .born file.
type Header struct {
	FormatVersion  int               `json:"format_version"`
	Producer       string            `json:"producer"`
	ModelType      string            `json:"model_type"`
	CreatedAt      time.Time         `json:"created_at"`
	Tensors        []TensorMeta      `json:"tensors"`
	Metadata       map[string]string `json:"metadata"`
	CheckpointMeta *CheckpointMeta   `json:"checkpoint,omitempty"`
}

// Sections of a checkpoint blob. Tensor names are "<section>.<key>".
const (
	ModelPrefix     = "model"
	OptimizerPrefix = "optimizer"
	SchedulerPrefix = "scheduler"
)

// CheckpointMeta describes what a checkpoint blob carries besides the model
// state.
type CheckpointMeta struct {
	ID           string         `json:"id"`
	HasOptimizer bool           `json:"has_optimizer"`
	HasScheduler bool           `json:"has_scheduler"`
	Extra        map[string]any `json:"extra,omitempty"`
}

// TensorMeta describes a tensor in the .born file.
type TensorMeta struct {
	Name   string `json:"name"`   // Tensor name (e.g., "model.features.0.weight")
	DType  string `json:"dtype"`  // Data type (e.g., "float32", "float64")
	Shape  []int  `json:"shape"`  // Tensor shape
	Offset int64  `json:"offset"` // Offset in the data section
	Size   int64  `json:"size"`   // Size in bytes
}

func (h *Header) flags() uint32 {
	var flags uint32
	if len(h.Metadata) > 0 {
		flags |= FlagHasMetadata
	}
	if h.CheckpointMeta != nil {
		if h.CheckpointMeta.HasOptimizer {
			flags |= FlagHasOptimizer
		}
		if h.CheckpointMeta.HasScheduler {
			flags |= FlagHasScheduler
		}
	}
	return flags
}

func alignedDataOffset(headerSize int64) int64 {
	pos := int64(FixedHeaderSize) + headerSize
	return pos + (HeaderAlignment-pos%HeaderAlignment)%HeaderAlignment
}
