//go:build spinnaker

package spinnaker

// #cgo pkg-config: spinnaker_c
// #include <spinc/SpinnakerC.h>
// #include <stdlib.h>
import "C"

import "unsafe"

func findNode(nodeMap C.spinNodeMapHandle, name string) C.spinNodeHandle {
	cname := C.CString(name)
	defer C.free(unsafe.Pointer(cname))

	var node C.spinNodeHandle
	if C.spinNodeMapGetNode(nodeMap, cname, &node) != C.SPINNAKER_ERR_SUCCESS {
		return nil
	}
	return node
}

func readStringNode(nodeMap C.spinNodeMapHandle, name string) string {
	node := findNode(nodeMap, name)
	if node == nil {
		return ""
	}
	var size C.size_t
	C.spinStringGetValue(node, nil, &size)
	if size == 0 {
		return ""
	}
	buf := make([]C.char, size)
	if C.spinStringGetValue(node, &buf[0], &size) != C.SPINNAKER_ERR_SUCCESS {
		return ""
	}
	return C.GoString(&buf[0])
}

func (b *Backend) currentEnumSymbol(name string) string {
	node := findNode(b.nodeMap, name)
	if node == nil {
		return ""
	}
	var entry C.spinNodeHandle
	if C.spinEnumerationGetCurrentEntry(node, &entry) != C.SPINNAKER_ERR_SUCCESS {
		return ""
	}
	var size C.size_t
	C.spinEnumerationEntryGetSymbolic(entry, nil, &size)
	if size == 0 {
		return ""
	}
	buf := make([]C.char, size)
	if C.spinEnumerationEntryGetSymbolic(entry, &buf[0], &size) != C.SPINNAKER_ERR_SUCCESS {
		return ""
	}
	return C.GoString(&buf[0])
}

func (b *Backend) setEnum(name, symbolic string) error {
	node := findNode(b.nodeMap, name)
	if node == nil {
		return errNodef("node %s not found", name)
	}

	csym := C.CString(symbolic)
	defer C.free(unsafe.Pointer(csym))

	var entry C.spinNodeHandle
	if C.spinEnumerationGetEntryByName(node, csym, &entry) != C.SPINNAKER_ERR_SUCCESS {
		return errNodef("node %s has no entry %q", name, symbolic)
	}
	var intValue C.int64_t
	if C.spinEnumerationEntryGetIntValue(entry, &intValue) != C.SPINNAKER_ERR_SUCCESS {
		return errNodef("entry %q of %s has no integer value", symbolic, name)
	}
	if C.spinEnumerationSetIntValue(node, intValue) != C.SPINNAKER_ERR_SUCCESS {
		return errNodef("set %s to %q failed", name, symbolic)
	}
	return nil
}

func (b *Backend) execute(name string) error {
	node := findNode(b.nodeMap, name)
	if node == nil {
		return errNodef("node %s not found", name)
	}
	if C.spinCommandExecute(node) != C.SPINNAKER_ERR_SUCCESS {
		return errNodef("execute %s failed", name)
	}
	return nil
}

func (b *Backend) floatValue(name string) float64 {
	node := findNode(b.nodeMap, name)
	if node == nil {
		return 0
	}
	var value C.double
	if C.spinFloatGetValue(node, &value) != C.SPINNAKER_ERR_SUCCESS {
		return 0
	}
	return float64(value)
}

func (b *Backend) floatBounds(name string) (min, max, increment float64) {
	node := findNode(b.nodeMap, name)
	if node == nil {
		return 0, 0, 0
	}
	var cmin, cmax, cinc C.double
	var hasInc C.bool8_t
	C.spinFloatGetMin(node, &cmin)
	C.spinFloatGetMax(node, &cmax)
	C.spinFloatHasInc(node, &hasInc)
	if hasInc != 0 {
		C.spinFloatGetInc(node, &cinc)
	}
	return float64(cmin), float64(cmax), float64(cinc)
}

func (b *Backend) setFloat(name string, value float64) error {
	node := findNode(b.nodeMap, name)
	if node == nil {
		return errNodef("node %s not found", name)
	}
	if C.spinFloatSetValue(node, C.double(value)) != C.SPINNAKER_ERR_SUCCESS {
		return errNodef("set %s failed", name)
	}
	return nil
}

func (b *Backend) setBool(name string, value bool) error {
	node := findNode(b.nodeMap, name)
	if node == nil {
		return errNodef("node %s not found", name)
	}
	var cval C.bool8_t
	if value {
		cval = 1
	}
	if C.spinBooleanSetValue(node, cval) != C.SPINNAKER_ERR_SUCCESS {
		return errNodef("set %s failed", name)
	}
	return nil
}
