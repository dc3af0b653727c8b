package grid

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
)

// File format: 4-byte magic, uint32 header length, JSON header (dims and
// variable metadata), then each variable's values as little-endian float64
// in declaration order.
const (
	magic = "GRD1"

	// Ext is the artifact extension used across the pipeline tree.
	Ext = ".grd"

	// maxHeaderLen bounds the header allocation when decoding; real
	// headers are a few KB even for dense coordinate axes.
	maxHeaderLen = 8 << 20
)

type fileHeader struct {
	Time []int64   `json:"time"`
	Lat  []float64 `json:"lat"`
	Lon  []float64 `json:"lon"`
	Vars []varMeta `json:"vars"`
}

type varMeta struct {
	Name     string `json:"name"`
	Units    string `json:"units,omitempty"`
	LongName string `json:"long_name,omitempty"`
}

func Encode(w io.Writer, d *Dataset) error {
	if err := d.Validate(); err != nil {
		return err
	}

	header := fileHeader{
		Time: d.Time,
		Lat:  d.Lat,
		Lon:  d.Lon,
	}
	for _, v := range d.Vars {
		header.Vars = append(header.Vars, varMeta{
			Name:     v.Name,
			Units:    v.Units,
			LongName: v.LongName,
		})
	}
	headerJSON, err := json.Marshal(header)
	if err != nil {
		return fmt.Errorf("encode header: %w", err)
	}

	bw := bufio.NewWriter(w)
	if _, err := bw.WriteString(magic); err != nil {
		return err
	}
	if err := binary.Write(bw, binary.LittleEndian, uint32(len(headerJSON))); err != nil {
		return err
	}
	if _, err := bw.Write(headerJSON); err != nil {
		return err
	}

	buf := make([]byte, 8)
	for _, v := range d.Vars {
		for _, value := range v.Data {
			binary.LittleEndian.PutUint64(buf, math.Float64bits(value))
			if _, err := bw.Write(buf); err != nil {
				return err
			}
		}
	}
	return bw.Flush()
}

func Decode(r io.Reader) (*Dataset, error) {
	br := bufio.NewReader(r)

	magicBuf := make([]byte, len(magic))
	if _, err := io.ReadFull(br, magicBuf); err != nil {
		return nil, fmt.Errorf("read magic: %w", err)
	}
	if string(magicBuf) != magic {
		return nil, fmt.Errorf("not a grid file (magic %q)", magicBuf)
	}

	var headerLen uint32
	if err := binary.Read(br, binary.LittleEndian, &headerLen); err != nil {
		return nil, fmt.Errorf("read header length: %w", err)
	}
	if headerLen > maxHeaderLen {
		return nil, fmt.Errorf("header length %d exceeds %d, file is corrupt", headerLen, maxHeaderLen)
	}
	headerJSON := make([]byte, headerLen)
	if _, err := io.ReadFull(br, headerJSON); err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	var header fileHeader
	if err := json.Unmarshal(headerJSON, &header); err != nil {
		return nil, fmt.Errorf("decode header: %w", err)
	}

	d := New(header.Time, header.Lat, header.Lon)
	size := d.size()
	raw := make([]byte, 8)
	for _, meta := range header.Vars {
		data := make([]float64, size)
		for i := 0; i < size; i++ {
			if _, err := io.ReadFull(br, raw); err != nil {
				return nil, fmt.Errorf("read %s values: %w", meta.Name, err)
			}
			data[i] = math.Float64frombits(binary.LittleEndian.Uint64(raw))
		}
		d.Vars = append(d.Vars, Variable{
			Name:     meta.Name,
			Units:    meta.Units,
			LongName: meta.LongName,
			Data:     data,
		})
	}

	if err := d.Validate(); err != nil {
		return nil, err
	}
	return d, nil
}

func ReadFile(path string) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Decode(f)
}

// WriteFile encodes to a temp file and renames it into place, so an
// interrupted write never leaves a truncated artifact that a later run
// could mistake for a valid one.
func WriteFile(path string, d *Dataset) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if err := Encode(tmp, d); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}
