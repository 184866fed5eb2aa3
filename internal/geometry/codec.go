package geometry

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// Blob format constants.
const (
	meshMagic  = "BFM1"
	curveMagic = "BFC1"
	headerSize = 12 // magic(4) + vertex/point count(4) + triangle count(4)
)

var (
	// ErrInvalidMagic is returned when a blob does not start with the
	// expected magic bytes.
	ErrInvalidMagic = errors.New("invalid geometry blob magic")

	// ErrBlobTruncated is returned when a blob is shorter than its header
	// declares.
	ErrBlobTruncated = errors.New("geometry blob truncated")
)

// EncodeMesh serializes a mesh into the store blob format.
func EncodeMesh(m *Mesh) []byte {
	buf := bytes.NewBuffer(make([]byte, 0, headerSize+len(m.Vertices)*12+len(m.Triangles)*12))
	buf.WriteString(meshMagic)
	writeUint32(buf, uint32(len(m.Vertices)))
	writeUint32(buf, uint32(len(m.Triangles)))
	for _, v := range m.Vertices {
		writeVec3(buf, v)
	}
	for _, t := range m.Triangles {
		writeUint32(buf, uint32(t[0]))
		writeUint32(buf, uint32(t[1]))
		writeUint32(buf, uint32(t[2]))
	}
	return buf.Bytes()
}

// DecodeMesh deserializes a mesh blob.
func DecodeMesh(data []byte) (*Mesh, error) {
	nv, nt, err := MeshCounts(data)
	if err != nil {
		return nil, err
	}
	want := headerSize + nv*12 + nt*12
	if len(data) < want {
		return nil, fmt.Errorf("mesh blob: %w (have %d bytes, want %d)", ErrBlobTruncated, len(data), want)
	}
	m := &Mesh{
		Vertices:  make([]Vec3, nv),
		Triangles: make([][3]int32, nt),
	}
	off := headerSize
	for i := range m.Vertices {
		m.Vertices[i] = readVec3(data[off:])
		off += 12
	}
	for i := range m.Triangles {
		m.Triangles[i] = [3]int32{
			int32(binary.LittleEndian.Uint32(data[off:])),
			int32(binary.LittleEndian.Uint32(data[off+4:])),
			int32(binary.LittleEndian.Uint32(data[off+8:])),
		}
		off += 12
	}
	return m, nil
}

// MeshCounts reads the vertex and triangle counts from a mesh blob header
// without decoding the payload. Topology-change detection uses this to
// compare consecutive frames cheaply.
func MeshCounts(data []byte) (vertices, triangles int, err error) {
	if len(data) < headerSize {
		return 0, 0, fmt.Errorf("mesh blob: %w", ErrBlobTruncated)
	}
	if string(data[:4]) != meshMagic {
		return 0, 0, ErrInvalidMagic
	}
	nv := int(binary.LittleEndian.Uint32(data[4:8]))
	nt := int(binary.LittleEndian.Uint32(data[8:12]))
	return nv, nt, nil
}

// EncodeCurve serializes a curve into the store blob format.
func EncodeCurve(c *Curve) []byte {
	buf := bytes.NewBuffer(make([]byte, 0, headerSize+len(c.Points)*12))
	buf.WriteString(curveMagic)
	writeUint32(buf, uint32(len(c.Points)))
	writeUint32(buf, 0) // curves have no triangle section
	for _, p := range c.Points {
		writeVec3(buf, p)
	}
	return buf.Bytes()
}

// DecodeCurve deserializes a curve blob.
func DecodeCurve(data []byte) (*Curve, error) {
	if len(data) < headerSize {
		return nil, fmt.Errorf("curve blob: %w", ErrBlobTruncated)
	}
	if string(data[:4]) != curveMagic {
		return nil, ErrInvalidMagic
	}
	np := int(binary.LittleEndian.Uint32(data[4:8]))
	want := headerSize + np*12
	if len(data) < want {
		return nil, fmt.Errorf("curve blob: %w (have %d bytes, want %d)", ErrBlobTruncated, len(data), want)
	}
	c := &Curve{Points: make([]Vec3, np)}
	off := headerSize
	for i := range c.Points {
		c.Points[i] = readVec3(data[off:])
		off += 12
	}
	return c, nil
}

// EncodeMat4 packs a transform into 64 bytes for the keyframed tables.
func EncodeMat4(m Mat4) []byte {
	out := make([]byte, 64)
	for i, f := range m {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(f))
	}
	return out
}

// DecodeMat4 unpacks a 64-byte transform.
func DecodeMat4(data []byte) (Mat4, error) {
	var m Mat4
	if len(data) != 64 {
		return m, fmt.Errorf("transform blob: want 64 bytes, have %d", len(data))
	}
	for i := range m {
		m[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return m, nil
}

func writeUint32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

func writeVec3(buf *bytes.Buffer, v Vec3) {
	var b [12]byte
	binary.LittleEndian.PutUint32(b[0:], math.Float32bits(v.X))
	binary.LittleEndian.PutUint32(b[4:], math.Float32bits(v.Y))
	binary.LittleEndian.PutUint32(b[8:], math.Float32bits(v.Z))
	buf.Write(b[:])
}

func readVec3(data []byte) Vec3 {
	return Vec3{
		X: math.Float32frombits(binary.LittleEndian.Uint32(data[0:])),
		Y: math.Float32frombits(binary.LittleEndian.Uint32(data[4:])),
		Z: math.Float32frombits(binary.LittleEndian.Uint32(data[8:])),
	}
}
