package world

import "errors"

var (
	// ErrDuplicateChunk два чанка претендуют на одну координату.
	// Нарушение инварианта: генерация мира должна прерываться, а не перезаписывать чанк.
	ErrDuplicateChunk = errors.New("duplicate chunk coordinate")
	// ErrChunkNotFound чанк с такой координатой не загружен
	ErrChunkNotFound = errors.New("chunk not found")
	// ErrOutOfBounds локальная координата вне размеров чанка
	ErrOutOfBounds = errors.New("voxel coordinate out of bounds")
	// ErrInvalidDimensions размеры чанка не положительные
	ErrInvalidDimensions = errors.New("invalid chunk dimensions")
	// ErrDimensionMismatch размеры чанка не совпадают с размерами мира
	ErrDimensionMismatch = errors.New("chunk dimensions mismatch")
)
