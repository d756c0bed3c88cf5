package vm

import (
	"fmt"

	"go.zmach.net/zmach/zcode"
)

// Object and property table access. Objects are validated integer
// indices into the image, never pointers; every address derived here
// goes through the bounds-checked memory layer.

func (m *Machine) objectAddr(obj uint16) (uint32, error) {
	if obj == zcode.NullObject || obj > zcode.MaxObjects {
		return 0, fmt.Errorf("object %d out of range: %w", obj, errDecode)
	}
	addr := m.header.Objects + zcode.PropDefaultCount*2 + uint32(obj-1)*zcode.ObjectEntrySize
	if addr+zcode.ObjectEntrySize > m.mem.Size() {
		return 0, fmt.Errorf("object %d entry at 0x%05x: %w", obj, addr, ErrOutOfBounds)
	}
	return addr, nil
}

func (m *Machine) objectLink(obj uint16, off uint32) (uint16, error) {
	addr, err := m.objectAddr(obj)
	if err != nil {
		return 0, err
	}
	b, err := m.mem.Byte(addr + off)
	return uint16(b), err
}

func (m *Machine) setObjectLink(obj uint16, off uint32, target uint16) error {
	addr, err := m.objectAddr(obj)
	if err != nil {
		return err
	}
	return m.mem.WriteByte(addr+off, byte(target))
}

func (m *Machine) parentOf(obj uint16) (uint16, error) {
	return m.objectLink(obj, zcode.ObjectParentOff)
}

func (m *Machine) siblingOf(obj uint16) (uint16, error) {
	return m.objectLink(obj, zcode.ObjectSiblingOff)
}

func (m *Machine) childOf(obj uint16) (uint16, error) {
	return m.objectLink(obj, zcode.ObjectChildOff)
}

// --- attributes ---

func (m *Machine) attrLocation(obj, attr uint16) (uint32, byte, error) {
	if attr >= zcode.AttributeCount {
		return 0, 0, fmt.Errorf("attribute %d out of range: %w", attr, errDecode)
	}
	addr, err := m.objectAddr(obj)
	if err != nil {
		return 0, 0, err
	}
	return addr + uint32(attr>>3), 1 << (7 - attr&7), nil
}

func (m *Machine) testAttr(obj, attr uint16) (bool, error) {
	addr, mask, err := m.attrLocation(obj, attr)
	if err != nil {
		return false, err
	}
	b, err := m.mem.Byte(addr)
	return b&mask != 0, err
}

func (m *Machine) setAttr(obj, attr uint16, on bool) error {
	addr, mask, err := m.attrLocation(obj, attr)
	if err != nil {
		return err
	}
	b, err := m.mem.Byte(addr)
	if err != nil {
		return err
	}
	if on {
		b |= mask
	} else {
		b &^= mask
	}
	return m.mem.WriteByte(addr, b)
}

// --- tree surgery ---

// removeObj detaches obj from its parent's sibling chain. The chain
// walk is capped so a corrupted cyclic chain faults instead of
// spinning.
func (m *Machine) removeObj(obj uint16) error {
	parent, err := m.parentOf(obj)
	if err != nil {
		return err
	}
	if parent == zcode.NullObject {
		return nil
	}
	sibling, err := m.siblingOf(obj)
	if err != nil {
		return err
	}
	first, err := m.childOf(parent)
	if err != nil {
		return err
	}
	if first == obj {
		if err := m.setObjectLink(parent, zcode.ObjectChildOff, sibling); err != nil {
			return err
		}
	} else {
		prev := first
		for hops := 0; ; hops++ {
			if hops > zcode.MaxObjects {
				return fmt.Errorf("sibling chain of object %d does not terminate: %w", parent, errDecode)
			}
			next, err := m.siblingOf(prev)
			if err != nil {
				return err
			}
			if next == obj {
				break
			}
			if next == zcode.NullObject {
				return fmt.Errorf("object %d missing from parent %d's children: %w", obj, parent, errDecode)
			}
			prev = next
		}
		if err := m.setObjectLink(prev, zcode.ObjectSiblingOff, sibling); err != nil {
			return err
		}
	}
	if err := m.setObjectLink(obj, zcode.ObjectSiblingOff, zcode.NullObject); err != nil {
		return err
	}
	return m.setObjectLink(obj, zcode.ObjectParentOff, zcode.NullObject)
}

// insertObj detaches obj and re-attaches it as the first child of
// dest. Re-inserting under the same parent moves it to the front.
func (m *Machine) insertObj(obj, dest uint16) error {
	if _, err := m.objectAddr(dest); err != nil {
		return err
	}
	if err := m.removeObj(obj); err != nil {
		return err
	}
	oldFirst, err := m.childOf(dest)
	if err != nil {
		return err
	}
	if err := m.setObjectLink(obj, zcode.ObjectSiblingOff, oldFirst); err != nil {
		return err
	}
	if err := m.setObjectLink(obj, zcode.ObjectParentOff, dest); err != nil {
		return err
	}
	return m.setObjectLink(dest, zcode.ObjectChildOff, obj)
}

// --- properties ---

func (m *Machine) propTableAddr(obj uint16) (uint32, error) {
	addr, err := m.objectAddr(obj)
	if err != nil {
		return 0, err
	}
	w, err := m.mem.Word(addr + zcode.ObjectPropsOff)
	return uint32(w), err
}

// objectName decodes the short name from the head of the property
// table.
func (m *Machine) objectName(obj uint16) (string, error) {
	table, err := m.propTableAddr(obj)
	if err != nil {
		return "", err
	}
	textWords, err := m.mem.Byte(table)
	if err != nil {
		return "", err
	}
	if textWords == 0 {
		return "", nil
	}
	return m.decodeStringWords(table+1, uint32(textWords))
}

// firstPropAddr skips the short name to the first property record.
func (m *Machine) firstPropAddr(obj uint16) (uint32, error) {
	table, err := m.propTableAddr(obj)
	if err != nil {
		return 0, err
	}
	textWords, err := m.mem.Byte(table)
	if err != nil {
		return 0, err
	}
	return table + 1 + uint32(textWords)*2, nil
}

// propInfo finds property prop on obj: data address and size in
// bytes, or (0, 0) when absent. Absence is not an error; get_prop
// falls back to the defaults table.
func (m *Machine) propInfo(obj, prop uint16) (uint32, uint16, error) {
	addr, err := m.firstPropAddr(obj)
	if err != nil {
		return 0, 0, err
	}
	for {
		size, err := m.mem.Byte(addr)
		if err != nil {
			return 0, 0, err
		}
		if size == 0 {
			return 0, 0, nil
		}
		num := uint16(size & 0x1F)
		length := uint16(size>>5) + 1
		if num < prop {
			// Records are sorted descending; passed it.
			return 0, 0, nil
		}
		if num == prop {
			return addr + 1, length, nil
		}
		addr += 1 + uint32(length)
	}
}

func (m *Machine) propertyDefault(prop uint16) (uint16, error) {
	if prop < 1 || prop > zcode.MaxProperty {
		return 0, fmt.Errorf("property %d out of range: %w", prop, errDecode)
	}
	return m.mem.Word(m.header.Objects + uint32(prop-1)*2)
}

func (m *Machine) getProp(obj, prop uint16) (uint16, error) {
	addr, length, err := m.propInfo(obj, prop)
	if err != nil {
		return 0, err
	}
	switch length {
	case 0:
		return m.propertyDefault(prop)
	case 1:
		b, err := m.mem.Byte(addr)
		return uint16(b), err
	case 2:
		return m.mem.Word(addr)
	default:
		return 0, fmt.Errorf("get_prop on %d-byte property %d: %w", length, prop, errDecode)
	}
}

// putProp writes an existing property. Properties cannot be created
// at runtime; a missing property is fatal.
func (m *Machine) putProp(obj, prop, value uint16) error {
	addr, length, err := m.propInfo(obj, prop)
	if err != nil {
		return err
	}
	switch length {
	case 0:
		return fmt.Errorf("put_prop: object %d has no property %d: %w", obj, prop, errDecode)
	case 1:
		return m.mem.WriteByte(addr, byte(value))
	case 2:
		return m.mem.WriteWord(addr, value)
	default:
		return fmt.Errorf("put_prop on %d-byte property %d: %w", length, prop, errDecode)
	}
}

func (m *Machine) getPropAddr(obj, prop uint16) (uint16, error) {
	addr, length, err := m.propInfo(obj, prop)
	if err != nil || length == 0 {
		return 0, err
	}
	return uint16(addr), nil
}

// getNextProp iterates property numbers in table order; prop 0 yields
// the first.
func (m *Machine) getNextProp(obj, prop uint16) (uint16, error) {
	var addr uint32
	if prop == 0 {
		first, err := m.firstPropAddr(obj)
		if err != nil {
			return 0, err
		}
		addr = first
	} else {
		dataAddr, length, err := m.propInfo(obj, prop)
		if err != nil {
			return 0, err
		}
		if length == 0 {
			return 0, fmt.Errorf("get_next_prop: object %d has no property %d: %w", obj, prop, errDecode)
		}
		addr = dataAddr + uint32(length)
	}
	size, err := m.mem.Byte(addr)
	if err != nil {
		return 0, err
	}
	return uint16(size & 0x1F), nil
}

// propLen sizes a property from its data address, as get_prop_len
// receives it. Address 0 is defined to yield 0.
func (m *Machine) propLen(dataAddr uint16) (uint16, error) {
	if dataAddr == 0 {
		return 0, nil
	}
	size, err := m.mem.Byte(uint32(dataAddr) - 1)
	if err != nil {
		return 0, err
	}
	return uint16(size>>5) + 1, nil
}
