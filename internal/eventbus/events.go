package eventbus

import "github.com/annel0/voxelgen/internal/vec"

// Типы событий генератора
const (
	EventChunkRebuilt  = "ChunkRebuilt"
	EventChunkUnloaded = "ChunkUnloaded"
	EventVoxelEdited   = "VoxelEdited"
)

// ChunkRebuilt публикуется после установки нового меша чанка.
type ChunkRebuilt struct {
	Coords     vec.Vec3 `json:"coords"`
	Handle     string   `json:"handle"`
	Version    uint64   `json:"version"`
	Mode       string   `json:"mode"`
	Vertices   int      `json:"vertices"`
	Primitives int      `json:"primitives"`
	Missing    int      `json:"missing"`
	Cached     bool     `json:"cached"`
	TookMs     float64  `json:"took_ms"`
}

// ChunkUnloaded публикуется после выгрузки чанка и освобождения его меша.
type ChunkUnloaded struct {
	Coords vec.Vec3 `json:"coords"`
}

// VoxelEdited публикуется после применения правки ландшафта.
type VoxelEdited struct {
	Chunk vec.Vec3 `json:"chunk"`
	Local vec.Vec3 `json:"local"`
	Solid bool     `json:"solid"`
}
