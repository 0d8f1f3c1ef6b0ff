package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/annel0/voxelgen/internal/vec"
	"github.com/annel0/voxelgen/internal/world"
	_ "github.com/go-sql-driver/mysql"
)

// MariaDeltaRepo реализует DeltaRepo для базы данных MariaDB/MySQL.
// Использует таблицу voxel_deltas с составным первичным ключом (чанк, локальная координата).
type MariaDeltaRepo struct {
	db *sql.DB
}

// NewMariaDeltaRepo подключается к базе и создаёт таблицу, если её нет.
//
// Параметры:
//
//	dsn - строка подключения к базе данных (user:pass@tcp(host:port)/dbname)
func NewMariaDeltaRepo(dsn string) (*MariaDeltaRepo, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("не удалось подключиться к MariaDB: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("не удалось проверить соединение с MariaDB: %w", err)
	}

	repo := &MariaDeltaRepo{db: db}
	if err := repo.createTable(); err != nil {
		db.Close()
		return nil, fmt.Errorf("не удалось создать таблицу: %w", err)
	}
	return repo, nil
}

func (r *MariaDeltaRepo) createTable() error {
	query := `
		CREATE TABLE IF NOT EXISTS voxel_deltas (
			cx         INT               NOT NULL,
			cy         INT               NOT NULL,
			cz         INT               NOT NULL,
			lx         INT               NOT NULL,
			ly         INT               NOT NULL,
			lz         INT               NOT NULL,
			solid      BOOLEAN           NOT NULL,
			material   SMALLINT UNSIGNED NOT NULL DEFAULT 0,
			updated_at TIMESTAMP         DEFAULT CURRENT_TIMESTAMP
			           ON UPDATE         CURRENT_TIMESTAMP,
			PRIMARY KEY (cx, cy, cz, lx, ly, lz)
		) ENGINE=InnoDB
	`
	if _, err := r.db.Exec(query); err != nil {
		return fmt.Errorf("ошибка создания таблицы voxel_deltas: %w", err)
	}
	return nil
}

// Save использует INSERT ... ON DUPLICATE KEY UPDATE для перезаписи правки.
func (r *MariaDeltaRepo) Save(ctx context.Context, d VoxelDelta) error {
	if err := validateDelta(d); err != nil {
		return err
	}

	query := `
		INSERT INTO voxel_deltas (cx, cy, cz, lx, ly, lz, solid, material)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			solid = VALUES(solid),
			material = VALUES(material),
			updated_at = CURRENT_TIMESTAMP
	`
	_, err := r.db.ExecContext(ctx, query,
		d.Chunk.X, d.Chunk.Y, d.Chunk.Z,
		d.Local.X, d.Local.Y, d.Local.Z,
		d.Voxel.Solid, uint16(d.Voxel.Material))
	if err != nil {
		return fmt.Errorf("ошибка сохранения правки %s/%s: %w", d.Chunk, d.Local, err)
	}
	return nil
}

func (r *MariaDeltaRepo) LoadChunk(ctx context.Context, chunk vec.Vec3) ([]VoxelDelta, error) {
	query := `
		SELECT cx, cy, cz, lx, ly, lz, solid, material FROM voxel_deltas
		WHERE cx = ? AND cy = ? AND cz = ?
		ORDER BY lx, ly, lz
	`
	rows, err := r.db.QueryContext(ctx, query, chunk.X, chunk.Y, chunk.Z)
	if err != nil {
		return nil, fmt.Errorf("ошибка загрузки правок чанка %s: %w", chunk, err)
	}
	return scanDeltas(rows)
}

func (r *MariaDeltaRepo) LoadAll(ctx context.Context) ([]VoxelDelta, error) {
	query := `
		SELECT cx, cy, cz, lx, ly, lz, solid, material FROM voxel_deltas
		ORDER BY cx, cy, cz, lx, ly, lz
	`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("ошибка загрузки правок: %w", err)
	}
	return scanDeltas(rows)
}

func scanDeltas(rows *sql.Rows) ([]VoxelDelta, error) {
	defer rows.Close()

	out := make([]VoxelDelta, 0)
	for rows.Next() {
		var d VoxelDelta
		var material uint16
		if err := rows.Scan(&d.Chunk.X, &d.Chunk.Y, &d.Chunk.Z,
			&d.Local.X, &d.Local.Y, &d.Local.Z, &d.Voxel.Solid, &material); err != nil {
			return nil, fmt.Errorf("ошибка чтения строки voxel_deltas: %w", err)
		}
		d.Voxel.Material = world.MaterialID(material)
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *MariaDeltaRepo) DeleteChunk(ctx context.Context, chunk vec.Vec3) error {
	query := `DELETE FROM voxel_deltas WHERE cx = ? AND cy = ? AND cz = ?`
	if _, err := r.db.ExecContext(ctx, query, chunk.X, chunk.Y, chunk.Z); err != nil {
		return fmt.Errorf("ошибка удаления правок чанка %s: %w", chunk, err)
	}
	return nil
}

func (r *MariaDeltaRepo) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}
