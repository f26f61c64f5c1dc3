//go:build idspeak

package idspeak

// #cgo pkg-config: ids_peak_comfort_c
// #include <ids_peak_comfort_c/pec.h>
// #include <stdlib.h>
import "C"

import (
	"unsafe"

	"github.com/pkg/errors"
)

// findNode resolves a GenICam node by symbolic name, returning nil if the
// node does not exist on this device's node map (ids-peak.cpp treats a
// missing node the same as "not supported" rather than an error).
func (b *Backend) findNode(name string) C.peak_node_handle {
	cname := C.CString(name)
	defer C.free(unsafe.Pointer(cname))

	var node C.peak_node_handle
	status := C.peak_NodeMap_FindNode(b.nodeMap, cname, &node)
	if status != C.PEAK_STATUS_SUCCESS {
		return nil
	}
	return node
}

func (b *Backend) nodeExists(name string) bool {
	return b.findNode(name) != nil
}

func isWriteable(node C.peak_node_handle) bool {
	var access C.peak_access_status
	if C.peak_Node_GetAccessStatus(node, &access) != C.PEAK_STATUS_SUCCESS {
		return false
	}
	return access == C.PEAK_ACCESS_STATUS_READWRITE
}

func isReadable(node C.peak_node_handle) bool {
	var access C.peak_access_status
	if C.peak_Node_GetAccessStatus(node, &access) != C.PEAK_STATUS_SUCCESS {
		return false
	}
	return access == C.PEAK_ACCESS_STATUS_READWRITE || access == C.PEAK_ACCESS_STATUS_READONLY
}

func (b *Backend) nodeInt(name string) (int64, error) {
	node := b.findNode(name)
	if node == nil || !isReadable(node) {
		return 0, errors.Errorf("idspeak: node %s not readable", name)
	}
	var intNode C.peak_integer_node_handle
	if C.peak_Node_ToIntegerNode(node, &intNode) != C.PEAK_STATUS_SUCCESS {
		return 0, errors.Errorf("idspeak: node %s is not an integer node", name)
	}
	var value C.int64_t
	if C.peak_IntegerNode_GetValue(intNode, &value) != C.PEAK_STATUS_SUCCESS {
		return 0, errors.Errorf("idspeak: read %s failed", name)
	}
	return int64(value), nil
}

func (b *Backend) nodeSetInt(name string, value int64) error {
	node := b.findNode(name)
	if node == nil || !isWriteable(node) {
		return errors.Errorf("idspeak: node %s not writeable", name)
	}
	var intNode C.peak_integer_node_handle
	if C.peak_Node_ToIntegerNode(node, &intNode) != C.PEAK_STATUS_SUCCESS {
		return errors.Errorf("idspeak: node %s is not an integer node", name)
	}
	if C.peak_IntegerNode_SetValue(intNode, C.int64_t(value)) != C.PEAK_STATUS_SUCCESS {
		return errors.Errorf("idspeak: write %s failed", name)
	}
	return nil
}

func (b *Backend) nodeFloat(name string) (float64, error) {
	node := b.findNode(name)
	if node == nil || !isReadable(node) {
		return 0, errors.Errorf("idspeak: node %s not readable", name)
	}
	var floatNode C.peak_float_node_handle
	if C.peak_Node_ToFloatNode(node, &floatNode) != C.PEAK_STATUS_SUCCESS {
		return 0, errors.Errorf("idspeak: node %s is not a float node", name)
	}
	var value C.double
	if C.peak_FloatNode_GetValue(floatNode, &value) != C.PEAK_STATUS_SUCCESS {
		return 0, errors.Errorf("idspeak: read %s failed", name)
	}
	return float64(value), nil
}

// nodeFloatBounds returns min, max, and increment (0 if the node has no
// fixed increment — ids-peak.cpp snaps to increment only when it is > 0).
func (b *Backend) nodeFloatBounds(name string) (min, max, increment float64, err error) {
	node := b.findNode(name)
	if node == nil || !isReadable(node) {
		return 0, 0, 0, errors.Errorf("idspeak: node %s not readable", name)
	}
	var floatNode C.peak_float_node_handle
	if C.peak_Node_ToFloatNode(node, &floatNode) != C.PEAK_STATUS_SUCCESS {
		return 0, 0, 0, errors.Errorf("idspeak: node %s is not a float node", name)
	}
	var cmin, cmax, cinc C.double
	if C.peak_FloatNode_GetMinimum(floatNode, &cmin) != C.PEAK_STATUS_SUCCESS {
		return 0, 0, 0, errors.Errorf("idspeak: read %s minimum failed", name)
	}
	if C.peak_FloatNode_GetMaximum(floatNode, &cmax) != C.PEAK_STATUS_SUCCESS {
		return 0, 0, 0, errors.Errorf("idspeak: read %s maximum failed", name)
	}
	if C.peak_FloatNode_GetIncrement(floatNode, &cinc) != C.PEAK_STATUS_SUCCESS {
		cinc = 0
	}
	return float64(cmin), float64(cmax), float64(cinc), nil
}

func (b *Backend) nodeSetFloat(name string, value float64) error {
	node := b.findNode(name)
	if node == nil || !isWriteable(node) {
		return errors.Errorf("idspeak: node %s not writeable", name)
	}
	var floatNode C.peak_float_node_handle
	if C.peak_Node_ToFloatNode(node, &floatNode) != C.PEAK_STATUS_SUCCESS {
		return errors.Errorf("idspeak: node %s is not a float node", name)
	}
	if C.peak_FloatNode_SetValue(floatNode, C.double(value)) != C.PEAK_STATUS_SUCCESS {
		return errors.Errorf("idspeak: write %s failed", name)
	}
	return nil
}

func (b *Backend) nodeSetBool(name string, value bool) error {
	node := b.findNode(name)
	if node == nil || !isWriteable(node) {
		return errors.Errorf("idspeak: node %s not writeable", name)
	}
	var boolNode C.peak_boolean_node_handle
	if C.peak_Node_ToBooleanNode(node, &boolNode) != C.PEAK_STATUS_SUCCESS {
		return errors.Errorf("idspeak: node %s is not a boolean node", name)
	}
	var cval C.peak_bool
	if value {
		cval = 1
	}
	if C.peak_BooleanNode_SetValue(boolNode, cval) != C.PEAK_STATUS_SUCCESS {
		return errors.Errorf("idspeak: write %s failed", name)
	}
	return nil
}

func (b *Backend) nodeCurrentEntry(name string) (string, error) {
	node := b.findNode(name)
	if node == nil || !isReadable(node) {
		return "", errors.Errorf("idspeak: node %s not readable", name)
	}
	var enumNode C.peak_enumeration_node_handle
	if C.peak_Node_ToEnumerationNode(node, &enumNode) != C.PEAK_STATUS_SUCCESS {
		return "", errors.Errorf("idspeak: node %s is not an enumeration node", name)
	}
	var entry C.peak_enumeration_entry_node_handle
	if C.peak_EnumerationNode_GetCurrentEntry(enumNode, &entry) != C.PEAK_STATUS_SUCCESS {
		return "", errors.Errorf("idspeak: read current entry of %s failed", name)
	}

	var size C.size_t
	C.peak_EnumerationEntryNode_GetSymbolicValue(entry, nil, &size)
	buf := make([]C.char, size)
	if C.peak_EnumerationEntryNode_GetSymbolicValue(entry, &buf[0], &size) != C.PEAK_STATUS_SUCCESS {
		return "", errors.Errorf("idspeak: read symbolic value of %s failed", name)
	}
	return C.GoString(&buf[0]), nil
}

func (b *Backend) nodeSetCurrentEntry(name, symbolic string) error {
	node := b.findNode(name)
	if node == nil || !isWriteable(node) {
		return errors.Errorf("idspeak: node %s not writeable", name)
	}
	var enumNode C.peak_enumeration_node_handle
	if C.peak_Node_ToEnumerationNode(node, &enumNode) != C.PEAK_STATUS_SUCCESS {
		return errors.Errorf("idspeak: node %s is not an enumeration node", name)
	}

	csym := C.CString(symbolic)
	defer C.free(unsafe.Pointer(csym))

	var entry C.peak_enumeration_entry_node_handle
	if C.peak_EnumerationNode_FindEntryBySymbolicValue(enumNode, csym, &entry) != C.PEAK_STATUS_SUCCESS {
		return errors.Errorf("idspeak: %s has no entry %q", name, symbolic)
	}
	if C.peak_EnumerationNode_SetCurrentEntry(enumNode, entry) != C.PEAK_STATUS_SUCCESS {
		return errors.Errorf("idspeak: set %s to %q failed", name, symbolic)
	}
	return nil
}

func (b *Backend) nodeExecute(name string) error {
	node := b.findNode(name)
	if node == nil || !isWriteable(node) {
		return errors.Errorf("idspeak: node %s not executable", name)
	}
	var cmdNode C.peak_command_node_handle
	if C.peak_Node_ToCommandNode(node, &cmdNode) != C.PEAK_STATUS_SUCCESS {
		return errors.Errorf("idspeak: node %s is not a command node", name)
	}
	if C.peak_CommandNode_Execute(cmdNode) != C.PEAK_STATUS_SUCCESS {
		return errors.Errorf("idspeak: execute %s failed", name)
	}
	if C.peak_CommandNode_WaitUntilDone(cmdNode, C.PEAK_INFINITE_TIMEOUT) != C.PEAK_STATUS_SUCCESS {
		return errors.Errorf("idspeak: %s did not complete", name)
	}
	return nil
}
