package cpu

import (
	"archive/zip"
	"bytes"
	"encoding/binary"
	"encoding/json"
	"io"
	"os"

	"github.com/pkg/errors"
)

// machineState is the JSON part of a snapshot: everything except the two
// memories.
type machineState struct {
	A        uint16 `json:"a"`
	D        uint16 `json:"d"`
	PC       uint16 `json:"pc"`
	Key      uint16 `json:"key"`
	Halted   bool   `json:"halted"`
	Steps    uint64 `json:"steps"`
	ROMWords int    `json:"rom_words"`
}

// HibernateToBytes serialises the machine into an in-memory ZIP archive
// holding cpu_state.json, rom.bin and ram.bin.
func (c *CPU) HibernateToBytes() ([]byte, error) {
	buf := new(bytes.Buffer)
	zw := zip.NewWriter(buf)

	state := machineState{
		A:        c.A,
		D:        c.D,
		PC:       c.PC,
		Key:      c.Key,
		Halted:   c.Halted,
		Steps:    c.Steps,
		ROMWords: len(c.ROM),
	}
	jsonData, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return nil, errors.Wrap(err, "marshal cpu_state")
	}
	if err := writeZipEntry(zw, "cpu_state.json", jsonData); err != nil {
		return nil, err
	}
	if err := writeZipEntry(zw, "rom.bin", uint16SliceToLE(c.ROM)); err != nil {
		return nil, err
	}
	if err := writeZipEntry(zw, "ram.bin", uint16SliceToLE(c.RAM[:])); err != nil {
		return nil, err
	}

	if err := zw.Close(); err != nil {
		return nil, errors.Wrap(err, "close zip")
	}
	return buf.Bytes(), nil
}

// RestoreFromBytes replaces the machine state with a snapshot produced by
// HibernateToBytes. The screen is marked dirty so front ends redraw it.
func (c *CPU) RestoreFromBytes(data []byte) error {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return errors.Wrap(err, "open snapshot")
	}
	fileMap := make(map[string]*zip.File, len(zr.File))
	for _, f := range zr.File {
		fileMap[f.Name] = f
	}

	jsonData, err := readZipEntry(fileMap, "cpu_state.json")
	if err != nil {
		return err
	}
	var state machineState
	if err := json.Unmarshal(jsonData, &state); err != nil {
		return errors.Wrap(err, "unmarshal cpu_state")
	}

	romData, err := readZipEntry(fileMap, "rom.bin")
	if err != nil {
		return err
	}
	if len(romData) != state.ROMWords*2 || state.ROMWords > ROMSize {
		return errors.Errorf("rom.bin holds %d bytes, want %d words", len(romData), state.ROMWords)
	}
	ramData, err := readZipEntry(fileMap, "ram.bin")
	if err != nil {
		return err
	}
	if len(ramData) != RAMSize*2 {
		return errors.Errorf("ram.bin holds %d bytes, want %d", len(ramData), RAMSize*2)
	}

	c.ROM = make([]uint16, state.ROMWords)
	leToUint16Slice(romData, c.ROM)
	leToUint16Slice(ramData, c.RAM[:])
	c.A, c.D, c.PC = state.A, state.D, state.PC
	c.Key = state.Key
	c.Halted = state.Halted
	c.Steps = state.Steps
	c.ScreenDirty = true
	return nil
}

// HibernateToFile writes the hibernation archive to the given file path.
func (c *CPU) HibernateToFile(path string) error {
	data, err := c.HibernateToBytes()
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// RestoreFromFile reads a hibernation archive from the given file path and
// restores the machine state.
func (c *CPU) RestoreFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return c.RestoreFromBytes(data)
}

func writeZipEntry(zw *zip.Writer, name string, data []byte) error {
	w, err := zw.Create(name)
	if err != nil {
		return errors.Wrapf(err, "create zip entry %q", name)
	}
	_, err = w.Write(data)
	return err
}

func readZipEntry(fileMap map[string]*zip.File, name string) ([]byte, error) {
	f, ok := fileMap[name]
	if !ok {
		return nil, errors.Errorf("zip entry %q not found", name)
	}
	rc, err := f.Open()
	if err != nil {
		return nil, errors.Wrapf(err, "open zip entry %q", name)
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

func uint16SliceToLE(src []uint16) []byte {
	out := make([]byte, len(src)*2)
	for i, v := range src {
		binary.LittleEndian.PutUint16(out[i*2:], v)
	}
	return out
}

func leToUint16Slice(src []byte, dst []uint16) {
	for i := range dst {
		if i*2+1 < len(src) {
			dst[i] = binary.LittleEndian.Uint16(src[i*2:])
		}
	}
}
