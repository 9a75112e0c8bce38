// Package flash models read-only program memory.
//
// Constant data on the target lives in storage that is not mapped like RAM;
// reaching it takes an extended-addressing primitive that temporarily
// repurposes a bank-select register. The rest of the stack only sees the
// [Reader] capability: "copy N bytes from this constant-memory address".
//
// [Image] is the in-memory implementation used by the simulator, the tests
// and the descriptor linker. It keeps a bank register that every read saves,
// repoints and restores, so a read issued from interrupt context never
// disturbs a read that was in progress in the foreground.
//
//	img := flash.NewImage(0x10000, 4096)
//	addr, _ := img.Append([]byte{0x12, 0x01})
//	img.Seal()
//	b := flash.ReadByte(img, addr+1) // 0x01
package flash
