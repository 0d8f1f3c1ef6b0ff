package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/annel0/voxelgen/internal/vec"
	"github.com/annel0/voxelgen/internal/world"
)

// VoxelDelta одна правка ландшафта: итоговое значение вокселя в чанке.
// Генерация детерминирована по сиду, поэтому мир восстанавливается
// как «сгенерировать, затем применить дельты».
type VoxelDelta struct {
	Chunk vec.Vec3    `json:"chunk"`
	Local vec.Vec3    `json:"local"`
	Voxel world.Voxel `json:"voxel"`
}

// DeltaRepo определяет интерфейс для сохранения правок ландшафта.
// Для одной пары (Chunk, Local) хранится только последнее значение.
type DeltaRepo interface {
	// Save сохраняет правку, перезаписывая предыдущую для того же вокселя.
	Save(ctx context.Context, d VoxelDelta) error

	// LoadChunk возвращает правки чанка, отсортированные по локальной координате.
	// Пустой результат без ошибки, если правок нет.
	LoadChunk(ctx context.Context, chunk vec.Vec3) ([]VoxelDelta, error)

	// LoadAll возвращает все правки, отсортированные по чанку и локальной координате.
	LoadAll(ctx context.Context) ([]VoxelDelta, error)

	// DeleteChunk удаляет все правки чанка (повторная генерация с нуля).
	DeleteChunk(ctx context.Context, chunk vec.Vec3) error

	Close() error
}

var (
	ErrInvalidDelta = errors.New("invalid voxel delta")
	ErrStoreClosed  = errors.New("storage closed")
)

func validateDelta(d VoxelDelta) error {
	if d.Local.X < 0 || d.Local.Y < 0 || d.Local.Z < 0 {
		return fmt.Errorf("%w: отрицательная локальная координата %s", ErrInvalidDelta, d.Local)
	}
	return nil
}

func sortDeltas(ds []VoxelDelta) {
	sort.Slice(ds, func(i, j int) bool {
		if !ds[i].Chunk.Equals(ds[j].Chunk) {
			return ds[i].Chunk.Less(ds[j].Chunk)
		}
		return ds[i].Local.Less(ds[j].Local)
	})
}

func checkContext(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}

// ApplyDeltas применяет правки к уже сгенерированным чанкам индекса.
// Правки для отсутствующих чанков пропускаются молча: чанк ещё не загружен.
// Правки вне сетки чанка (сохранены при других размерах) пропускаются и считаются в skipped.
func ApplyDeltas(w *world.WorldIndex, deltas []VoxelDelta) (applied, skipped int, err error) {
	dims := w.Dimensions()
	for _, d := range deltas {
		if _, ok := w.Get(d.Chunk); !ok {
			continue
		}
		if !dims.Contains(d.Local) {
			skipped++
			continue
		}
		if err := w.SetVoxel(d.Chunk, d.Local, d.Voxel); err != nil {
			return applied, skipped, fmt.Errorf("применение правки %s/%s: %w", d.Chunk, d.Local, err)
		}
		applied++
	}
	return applied, skipped, nil
}
