package serialization

import (
	"bytes"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/vision/internal/tensor"
)

func sampleState(t *testing.T) map[string]*tensor.RawTensor {
	t.Helper()
	w, err := tensor.FromFloat32(tensor.Shape{2, 3}, []float32{1, 2, 3, 4, 5, 6})
	require.NoError(t, err)
	b, err := tensor.FromFloat64(tensor.Shape{2}, []float64{-1, 0.5})
	require.NoError(t, err)
	steps := tensor.Zeros(tensor.Shape{1}, tensor.Int64, tensor.CPU)
	steps.AsInt64()[0] = 42
	return map[string]*tensor.RawTensor{
		"model.features.0.weight": w,
		"model.features.0.bias":   b,
		"optimizer.step":          steps,
	}
}

func TestWriteRead_RoundTrip(t *testing.T) {
	state := sampleState(t)
	header := Header{
		ModelType: "SqueezeNet",
		Metadata:  map[string]string{"epoch": "3"},
		CheckpointMeta: &CheckpointMeta{
			ID:           "abc",
			HasOptimizer: true,
			Extra:        map[string]any{"iteration": 12.0, "tag": "best"},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, state, header))
	assert.Equal(t, MagicBytes, buf.String()[:4])

	got, h, err := Read(bytes.NewReader(buf.Bytes()), ReaderOptions{})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, FormatVersion, h.FormatVersion)
	assert.Equal(t, Producer, h.Producer)
	assert.Equal(t, "SqueezeNet", h.ModelType)
	assert.Equal(t, "3", h.Metadata["epoch"])
	require.NotNil(t, h.CheckpointMeta)
	assert.True(t, h.CheckpointMeta.HasOptimizer)
	assert.False(t, h.CheckpointMeta.HasScheduler)
	assert.Equal(t, "best", h.CheckpointMeta.Extra["tag"])
	assert.Equal(t, 12.0, h.CheckpointMeta.Extra["iteration"])

	for name, want := range state {
		require.Contains(t, got, name)
		assert.Equal(t, want.DType(), got[name].DType(), name)
		assert.Equal(t, want.Shape(), got[name].Shape(), name)
		assert.Equal(t, want.Data(), got[name].Data(), name)
		assert.Equal(t, tensor.CPU, got[name].Device())
	}
}

func TestWrite_FlagsAndAlignment(t *testing.T) {
	var buf bytes.Buffer
	header := Header{CheckpointMeta: &CheckpointMeta{HasOptimizer: true, HasScheduler: true}}
	require.NoError(t, Write(&buf, sampleState(t), header))

	raw := buf.Bytes()
	flags := uint32(raw[8]) | uint32(raw[9])<<8
	assert.Equal(t, FlagHasOptimizer|FlagHasScheduler, flags)

	// Data section starts on a 64-byte boundary and ends the blob.
	var dataSize int
	for i := 7; i >= 0; i-- {
		dataSize = dataSize<<8 | int(raw[24+i])
	}
	assert.Equal(t, 0, (len(raw)-dataSize)%HeaderAlignment)
}

func TestWrite_Deterministic(t *testing.T) {
	state := sampleState(t)
	var a, b bytes.Buffer
	require.NoError(t, Write(&a, state, Header{}))
	require.NoError(t, Write(&b, state, Header{}))

	// Headers differ in created_at only; data sections and checksums match.
	assert.Equal(t, a.Bytes()[ChecksumOffset:FixedHeaderSize], b.Bytes()[ChecksumOffset:FixedHeaderSize])
}

func TestRead_DetectsCorruption(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, sampleState(t), Header{}))
	raw := buf.Bytes()
	raw[len(raw)-1] ^= 0xFF

	_, _, err := Read(bytes.NewReader(raw), ReaderOptions{})
	assert.ErrorIs(t, err, ErrChecksumMismatch)

	_, _, err = Read(bytes.NewReader(raw), ReaderOptions{SkipChecksumValidation: true})
	assert.NoError(t, err)
}

func TestRead_RejectsMalformed(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, sampleState(t), Header{}))

	badMagic := append([]byte(nil), buf.Bytes()...)
	copy(badMagic, "NOPE")
	_, _, err := Read(bytes.NewReader(badMagic), ReaderOptions{})
	assert.ErrorIs(t, err, ErrInvalidMagic)

	badVersion := append([]byte(nil), buf.Bytes()...)
	badVersion[4] = 9
	_, _, err = Read(bytes.NewReader(badVersion), ReaderOptions{})
	assert.ErrorIs(t, err, ErrUnsupportedVersion)

	_, _, err = Read(bytes.NewReader(buf.Bytes()[:FixedHeaderSize+3]), ReaderOptions{})
	assert.Error(t, err)
}

func TestWrite_RejectsBadNames(t *testing.T) {
	state := map[string]*tensor.RawTensor{"../escape": tensor.Zeros(tensor.Shape{1}, tensor.Float32, tensor.CPU)}
	err := Write(&bytes.Buffer{}, state, Header{})
	var verr *ValidationError
	require.True(t, errors.As(err, &verr), "got %v", err)
	assert.Equal(t, "invalid_name", verr.Type)
	assert.ErrorIs(t, err, ErrInvalidHeader)
}

func TestWriteFile_ReadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "model_final.born")
	require.NoError(t, WriteFile(path, sampleState(t), Header{ModelType: "VGG"}))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1, "temporary file must be renamed away")

	state, header, err := ReadFile(path, ReaderOptions{})
	require.NoError(t, err)
	assert.Equal(t, "VGG", header.ModelType)
	assert.Equal(t, int64(42), state["optimizer.step"].AsInt64()[0])

	_, _, err = ReadFile(filepath.Join(dir, "missing.born"), ReaderOptions{})
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestFileChecksum(t *testing.T) {
	path := filepath.Join(t.TempDir(), "abc.txt")
	require.NoError(t, os.WriteFile(path, []byte("abc"), 0o600))

	sum, err := FileChecksum(path)
	require.NoError(t, err)
	assert.Equal(t, "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad", sum)

	direct := ComputeChecksum([]byte("abc"))
	assert.Equal(t, sum, hex.EncodeToString(direct[:]))
	assert.NoError(t, ValidateChecksum(direct, direct))
	assert.ErrorIs(t, ValidateChecksum(direct, [32]byte{}), ErrChecksumMismatch)
}

func TestValidateTensorOffsets(t *testing.T) {
	tests := []struct {
		name     string
		tensors  []TensorMeta
		dataSize int64
		wantType string
	}{
		{"valid", []TensorMeta{{Name: "a", Offset: 0, Size: 100}, {Name: "b", Offset: 100, Size: 50}}, 150, ""},
		{"overlap", []TensorMeta{{Name: "a", Offset: 0, Size: 100}, {Name: "b", Offset: 99, Size: 10}}, 200, "offset_overlap"},
		{"out of bounds", []TensorMeta{{Name: "a", Offset: 100, Size: 100}}, 150, "out_of_bounds"},
		{"negative", []TensorMeta{{Name: "a", Offset: -1, Size: 10}}, 150, "negative_offset"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateTensorOffsets(tt.tensors, tt.dataSize)
			if tt.wantType == "" {
				assert.NoError(t, err)
				return
			}
			var verr *ValidationError
			require.True(t, errors.As(err, &verr), "got %v", err)
			assert.Equal(t, tt.wantType, verr.Type)
		})
	}
}

func TestValidateTensorName(t *testing.T) {
	for _, name := range []string{"vgg.0.weight", "features.3.squeeze.weight", "l2_norm.weight"} {
		assert.NoError(t, ValidateTensorName(name), name)
	}
	for _, name := range []string{"", "a..b", "a/b", "a\\b", "a\x00b"} {
		assert.Error(t, ValidateTensorName(name), "%q", name)
	}
}

func TestValidateHeader_Levels(t *testing.T) {
	h := &Header{Tensors: []TensorMeta{{Name: "a", Offset: 0, Size: 10}, {Name: "a", Offset: 10, Size: 10}}}
	assert.Error(t, ValidateHeader(h, 20, ValidationNormal), "duplicate names")
	assert.NoError(t, ValidateHeader(h, 20, ValidationNone))

	h.Tensors[1].Name = "b"
	assert.NoError(t, ValidateHeader(h, 20, ValidationStrict))
	assert.Error(t, ValidateHeader(h, 15, ValidationStrict))
	assert.NoError(t, ValidateHeader(h, 15, ValidationNormal))
}
