package usecases

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/tbuseth/maquette/internal/core/domain"
)

// Binary mesh framing: magic "MQTM", u16 version, u16 flags, u32 gridW,
// u32 gridH, f32 planSize, f32 baseDepth, u32 vertexCount, u32 indexCount,
// u32 skirtVertexCount, then positions []f32 (xyz), rawHeights []f32,
// colors []f32 (rgb, present iff flags&1), indices []u32, u32 wallCount,
// and per wall {u32 vertexCount, u32 indexCount, positions []f32,
// normals []f32, indices []u32}. Little-endian throughout.
const (
	meshMagic      = "MQTM"
	meshVersion    = uint16(1)
	meshFlagColors = uint16(1)

	// maxMeshVertices caps decoded buffer sizes so a corrupt or hostile
	// frame cannot ask for gigabytes.
	maxMeshVertices = 1 << 22
)

// EncodeMesh serializes a mesh into the MQTM binary framing.
func EncodeMesh(m *domain.HeightfieldMesh) []byte {
	var flags uint16
	if m.HasColors() {
		flags |= meshFlagColors
	}

	buf := &bytes.Buffer{}
	buf.WriteString(meshMagic)
	le := binary.LittleEndian
	binary.Write(buf, le, meshVersion)
	binary.Write(buf, le, flags)
	binary.Write(buf, le, uint32(m.GridWidth))
	binary.Write(buf, le, uint32(m.GridHeight))
	binary.Write(buf, le, float32(m.PlanSize))
	binary.Write(buf, le, float32(m.BaseDepth))
	binary.Write(buf, le, uint32(m.VertexCount()))
	binary.Write(buf, le, uint32(m.IndexCount()))
	binary.Write(buf, le, uint32(m.SkirtVertexCount()))

	binary.Write(buf, le, m.Positions)
	binary.Write(buf, le, m.RawHeights)
	if flags&meshFlagColors != 0 {
		binary.Write(buf, le, m.Colors)
	}
	binary.Write(buf, le, m.Indices)

	binary.Write(buf, le, uint32(len(m.Skirts)))
	for _, w := range m.Skirts {
		binary.Write(buf, le, uint32(w.VertexCount()))
		binary.Write(buf, le, uint32(len(w.Indices)))
		binary.Write(buf, le, w.Positions)
		binary.Write(buf, le, w.Normals)
		binary.Write(buf, le, w.Indices)
	}
	return buf.Bytes()
}

// DecodeMesh parses an MQTM frame back into a mesh. Geometry and display
// buffers round-trip exactly; derived scale factors (height scale,
// exaggeration) are not part of the wire format.
func DecodeMesh(data []byte) (*domain.HeightfieldMesh, error) {
	r := bytes.NewReader(data)

	magic := make([]byte, 4)
	if _, err := r.Read(magic); err != nil || string(magic) != meshMagic {
		return nil, fmt.Errorf("bad mesh magic %q", magic)
	}
	le := binary.LittleEndian

	var version, flags uint16
	var gridW, gridH, vertexCount, indexCount, skirtVertexCount uint32
	var planSize, baseDepth float32
	for _, field := range []any{&version, &flags, &gridW, &gridH, &planSize, &baseDepth, &vertexCount, &indexCount, &skirtVertexCount} {
		if err := binary.Read(r, le, field); err != nil {
			return nil, fmt.Errorf("read mesh header: %w", err)
		}
	}
	if version != meshVersion {
		return nil, fmt.Errorf("unsupported mesh version %d", version)
	}
	if vertexCount > maxMeshVertices || indexCount > 6*maxMeshVertices || skirtVertexCount > maxMeshVertices {
		return nil, fmt.Errorf("mesh counts out of range: %d vertices, %d indices", vertexCount, indexCount)
	}

	m := &domain.HeightfieldMesh{
		GridWidth:  int(gridW),
		GridHeight: int(gridH),
		PlanSize:   float64(planSize),
		BaseDepth:  float64(baseDepth),
	}

	m.Positions = make([]float32, 3*vertexCount)
	if err := binary.Read(r, le, m.Positions); err != nil {
		return nil, fmt.Errorf("read positions: %w", err)
	}
	m.RawHeights = make([]float32, vertexCount)
	if err := binary.Read(r, le, m.RawHeights); err != nil {
		return nil, fmt.Errorf("read raw heights: %w", err)
	}
	if flags&meshFlagColors != 0 {
		m.Colors = make([]float32, 3*vertexCount)
		if err := binary.Read(r, le, m.Colors); err != nil {
			return nil, fmt.Errorf("read colors: %w", err)
		}
	}
	m.Indices = make([]uint32, indexCount)
	if err := binary.Read(r, le, m.Indices); err != nil {
		return nil, fmt.Errorf("read indices: %w", err)
	}

	var wallCount uint32
	if err := binary.Read(r, le, &wallCount); err != nil {
		return nil, fmt.Errorf("read wall count: %w", err)
	}
	if wallCount > 64 {
		return nil, fmt.Errorf("wall count %d out of range", wallCount)
	}
	for i := uint32(0); i < wallCount; i++ {
		var vc, ic uint32
		if err := binary.Read(r, le, &vc); err != nil {
			return nil, fmt.Errorf("read wall %d header: %w", i, err)
		}
		if err := binary.Read(r, le, &ic); err != nil {
			return nil, fmt.Errorf("read wall %d header: %w", i, err)
		}
		if vc > maxMeshVertices || ic > 6*maxMeshVertices {
			return nil, fmt.Errorf("wall %d counts out of range: %d vertices, %d indices", i, vc, ic)
		}
		w := domain.SkirtWall{
			Positions: make([]float32, 3*vc),
			Normals:   make([]float32, 3*vc),
			Indices:   make([]uint32, ic),
		}
		if err := binary.Read(r, le, w.Positions); err != nil {
			return nil, fmt.Errorf("read wall %d positions: %w", i, err)
		}
		if err := binary.Read(r, le, w.Normals); err != nil {
			return nil, fmt.Errorf("read wall %d normals: %w", i, err)
		}
		if err := binary.Read(r, le, w.Indices); err != nil {
			return nil, fmt.Errorf("read wall %d indices: %w", i, err)
		}
		m.Skirts = append(m.Skirts, w)
	}

	if got := uint32(m.SkirtVertexCount()); got != skirtVertexCount {
		return nil, fmt.Errorf("skirt vertex count mismatch: header %d, walls %d", skirtVertexCount, got)
	}
	return m, nil
}

// EncodeGrid serializes an elevation grid as u32 width, u32 height,
// f32 minHeight, f32 maxHeight and then row-major f32 samples,
// little-endian. The compact form clients feed straight into typed
// arrays; JSON remains the default representation.
func EncodeGrid(g *domain.ElevationGrid) []byte {
	buf := &bytes.Buffer{}
	le := binary.LittleEndian
	binary.Write(buf, le, uint32(g.Width))
	binary.Write(buf, le, uint32(g.Height))
	binary.Write(buf, le, float32(g.MinHeight))
	binary.Write(buf, le, float32(g.MaxHeight))
	values := make([]float32, len(g.Values))
	for i, v := range g.Values {
		values[i] = float32(v)
	}
	binary.Write(buf, le, values)
	return buf.Bytes()
}
