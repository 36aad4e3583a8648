// Package serialization implements the .born blob format used for
// checkpoints and pretrained weights.
//
//	Format Structure:
//	  [64 bytes: fixed header]
//	    0x00 magic "BORN"
//	    0x04 version (uint32 LE)
//	    0x08 flags (uint32 LE)
//	    0x10 header size (uint64 LE)
//	    0x18 data size (uint64 LE)
//	    0x20 SHA-256 of the data section
//	  [Header: JSON metadata]
//	  [padding to a 64-byte boundary]
//	  [Tensor data: raw little-endian bytes, in header order]
//
// Tensors are written in sorted name order, so identical state dicts
// produce identical data sections.
//
// Example usage:
//
//	header := serialization.Header{ModelType: "SqueezeNet"}
//	if err := serialization.WriteFile("model.born", model.StateDict(), header); err != nil {
//	    return err
//	}
//
//	state, header, err := serialization.ReadFile("model.born", serialization.ReaderOptions{})
//	if err != nil {
//	    return err
//	}
//	err = model.LoadStateDict(state)
package serialization
