package serialization

import (
	"bufio"
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/born-ml/vision/internal/tensor"
)

// Write encodes stateDict with header to w.
//
// FormatVersion, Producer, CreatedAt and Tensors are filled in; the caller
// sets ModelType, Metadata and CheckpointMeta.
func Write(w io.Writer, stateDict map[string]*tensor.RawTensor, header Header) error {
	header.FormatVersion = FormatVersion
	header.Producer = Producer
	if header.CreatedAt.IsZero() {
		header.CreatedAt = time.Now().UTC()
	}
	if header.Metadata == nil {
		header.Metadata = make(map[string]string)
	}

	names := make([]string, 0, len(stateDict))
	for name := range stateDict {
		if err := ValidateTensorName(name); err != nil {
			return err
		}
		names = append(names, name)
	}
	sort.Strings(names)

	// Calculate tensor offsets and the data checksum
	var offset int64
	hash := sha256.New()
	header.Tensors = make([]TensorMeta, 0, len(names))
	for _, name := range names {
		raw := stateDict[name]
		data := raw.Data()
		header.Tensors = append(header.Tensors, TensorMeta{
			Name:   name,
			DType:  raw.DType().String(),
			Shape:  []int(raw.Shape()),
			Offset: offset,
			Size:   int64(len(data)),
		})
		_, _ = hash.Write(data)
		offset += int64(len(data))
	}
	var checksum [ChecksumSize]byte
	copy(checksum[:], hash.Sum(nil))

	headerJSON, err := json.Marshal(header)
	if err != nil {
		return fmt.Errorf("failed to marshal header: %w", err)
	}

	// 0x00 magic, 0x04 version, 0x08 flags, 0x0C reserved,
	// 0x10 header size, 0x18 data size, 0x20 checksum
	fixed := make([]byte, FixedHeaderSize)
	copy(fixed[0:4], MagicBytes)
	binary.LittleEndian.PutUint32(fixed[4:8], uint32(FormatVersion))
	binary.LittleEndian.PutUint32(fixed[8:12], header.flags())
	binary.LittleEndian.PutUint64(fixed[16:24], uint64(len(headerJSON)))
	//nolint:gosec // G115: offset is a sum of non-negative sizes
	binary.LittleEndian.PutUint64(fixed[24:32], uint64(offset))
	copy(fixed[ChecksumOffset:ChecksumOffset+ChecksumSize], checksum[:])

	if _, err := w.Write(fixed); err != nil {
		return fmt.Errorf("failed to write fixed header: %w", err)
	}
	if _, err := w.Write(headerJSON); err != nil {
		return fmt.Errorf("failed to write header JSON: %w", err)
	}
	padding := alignedDataOffset(int64(len(headerJSON))) - int64(FixedHeaderSize) - int64(len(headerJSON))
	if padding > 0 {
		if _, err := w.Write(make([]byte, padding)); err != nil {
			return fmt.Errorf("failed to write padding: %w", err)
		}
	}
	for _, name := range names {
		if _, err := w.Write(stateDict[name].Data()); err != nil {
			return fmt.Errorf("failed to write tensor %s: %w", name, err)
		}
	}
	return nil
}

// WriteFile writes the blob to path through a temporary file in the same
// directory, so readers never observe a partial file.
func WriteFile(path string, stateDict map[string]*tensor.RawTensor, header Header) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	buf := bufio.NewWriterSize(tmp, 1<<20)
	if err := Write(buf, stateDict, header); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := buf.Flush(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to flush %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to move %s into place: %w", path, err)
	}
	return nil
}
