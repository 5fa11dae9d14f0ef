// This file was hand-written in the style createmock would generate for
// blockdev.BlockDevice. See the following page for more information on
// the tool this mirrors:
//
//     https://github.com/jacobsa/oglemock

package mock_blockdev

import (
	fmt "fmt"
	runtime "runtime"
	unsafe "unsafe"

	blockdev "github.com/jacobsa/diskfs/blockdev"
	oglemock "github.com/jacobsa/oglemock"
)

type MockBlockDevice interface {
	blockdev.BlockDevice
	oglemock.MockObject
}

type mockBlockDevice struct {
	controller  oglemock.Controller
	description string
}

func NewMockBlockDevice(
	c oglemock.Controller,
	desc string) MockBlockDevice {
	return &mockBlockDevice{
		controller:  c,
		description: desc,
	}
}

func (m *mockBlockDevice) Oglemock_Id() uintptr {
	return uintptr(unsafe.Pointer(m))
}

func (m *mockBlockDevice) Oglemock_Description() string {
	return m.description
}

func (m *mockBlockDevice) SectorCount() (o0 uint64) {
	_, file, line, _ := runtime.Caller(1)

	retVals := m.controller.HandleMethodCall(
		m,
		"SectorCount",
		file,
		line,
		[]interface{}{})

	if len(retVals) != 1 {
		panic(fmt.Sprintf("mockBlockDevice.SectorCount: invalid return values: %v", retVals))
	}

	// o0 uint64
	if retVals[0] != nil {
		o0 = retVals[0].(uint64)
	}

	return
}

func (m *mockBlockDevice) ReadSector(
	p0 blockdev.SectorID,
	p1 *[blockdev.SectorSize]byte) (o0 error) {
	_, file, line, _ := runtime.Caller(1)

	retVals := m.controller.HandleMethodCall(
		m,
		"ReadSector",
		file,
		line,
		[]interface{}{p0, p1})

	if len(retVals) != 1 {
		panic(fmt.Sprintf("mockBlockDevice.ReadSector: invalid return values: %v", retVals))
	}

	// o0 error
	if retVals[0] != nil {
		o0 = retVals[0].(error)
	}

	return
}

func (m *mockBlockDevice) WriteSector(
	p0 blockdev.SectorID,
	p1 *[blockdev.SectorSize]byte) (o0 error) {
	_, file, line, _ := runtime.Caller(1)

	retVals := m.controller.HandleMethodCall(
		m,
		"WriteSector",
		file,
		line,
		[]interface{}{p0, p1})

	if len(retVals) != 1 {
		panic(fmt.Sprintf("mockBlockDevice.WriteSector: invalid return values: %v", retVals))
	}

	// o0 error
	if retVals[0] != nil {
		o0 = retVals[0].(error)
	}

	return
}

func (m *mockBlockDevice) Reads() (o0 uint64) {
	_, file, line, _ := runtime.Caller(1)

	retVals := m.controller.HandleMethodCall(
		m,
		"Reads",
		file,
		line,
		[]interface{}{})

	if len(retVals) != 1 {
		panic(fmt.Sprintf("mockBlockDevice.Reads: invalid return values: %v", retVals))
	}

	// o0 uint64
	if retVals[0] != nil {
		o0 = retVals[0].(uint64)
	}

	return
}

func (m *mockBlockDevice) Writes() (o0 uint64) {
	_, file, line, _ := runtime.Caller(1)

	retVals := m.controller.HandleMethodCall(
		m,
		"Writes",
		file,
		line,
		[]interface{}{})

	if len(retVals) != 1 {
		panic(fmt.Sprintf("mockBlockDevice.Writes: invalid return values: %v", retVals))
	}

	// o0 uint64
	if retVals[0] != nil {
		o0 = retVals[0].(uint64)
	}

	return
}
