package preset

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/soochol/creativeflow/internal/pipeline"
)

// DB defines the DB-layer methods needed by PersistentRepository.
// *sql.DB satisfies this via the thin wrapper methods below, mirroring the
// teacher's internal/db package split between connection and per-entity files.
type DB interface {
	CreatePreset(ctx context.Context, p *Preset) error
	GetPreset(ctx context.Context, id string) (*Preset, error)
	ListPresets(ctx context.Context, userID string, presetType pipeline.PresetType) ([]*Preset, error)
	// UpdatePreset performs the version CAS at the SQL layer via
	// "WHERE id = $1 AND version = $2"; rowsAffected == 0 means conflict.
	UpdatePreset(ctx context.Context, p *Preset) (rowsAffected int64, err error)
	DeletePreset(ctx context.Context, id string) error
	TouchPreset(ctx context.Context, id string) error
}

// SQLDB is the default DB implementation over database/sql + lib/pq.
type SQLDB struct {
	Pool *sql.DB
}

func NewSQLDB(pool *sql.DB) *SQLDB { return &SQLDB{Pool: pool} }

const presetMigrationSQL = `
CREATE TABLE IF NOT EXISTS presets (
    id               TEXT PRIMARY KEY,
    name             TEXT NOT NULL,
    user_id          TEXT NOT NULL,
    version          INTEGER NOT NULL DEFAULT 1,
    model_id         TEXT NOT NULL DEFAULT '',
    pipeline_version TEXT NOT NULL DEFAULT '',
    preset_type      TEXT NOT NULL,
    input_snapshot   JSONB,
    style_recipe     JSONB,
    brand_kit        JSONB,
    usage_count      INTEGER NOT NULL DEFAULT 0,
    last_used_at     TIMESTAMPTZ,
    created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_presets_user_id ON presets(user_id);
`

// Migrate creates the presets table if it does not already exist.
func (d *SQLDB) Migrate(ctx context.Context) error {
	_, err := d.Pool.ExecContext(ctx, presetMigrationSQL)
	if err != nil {
		return fmt.Errorf("run preset migrations: %w", err)
	}
	return nil
}

func (d *SQLDB) CreatePreset(ctx context.Context, p *Preset) error {
	inputJSON, _ := json.Marshal(p.InputSnapshot)
	recipeJSON, _ := json.Marshal(p.StyleRecipeData)
	brandJSON, _ := json.Marshal(p.BrandKit)
	_, err := d.Pool.ExecContext(ctx,
		`INSERT INTO presets (id, name, user_id, version, model_id, pipeline_version, preset_type, input_snapshot, style_recipe, brand_kit, usage_count, last_used_at, created_at, updated_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
		p.ID, p.Name, p.UserID, p.Version, p.ModelID, p.PipelineVersion, string(p.Type),
		inputJSON, recipeJSON, brandJSON, p.UsageCount, p.LastUsedAt, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert preset: %w", err)
	}
	return nil
}

func (d *SQLDB) scanPreset(row *sql.Row) (*Preset, error) {
	p := &Preset{}
	var presetType string
	var inputJSON, recipeJSON, brandJSON []byte
	err := row.Scan(&p.ID, &p.Name, &p.UserID, &p.Version, &p.ModelID, &p.PipelineVersion, &presetType,
		&inputJSON, &recipeJSON, &brandJSON, &p.UsageCount, &p.LastUsedAt, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, &NotFound{ID: ""}
	}
	if err != nil {
		return nil, fmt.Errorf("scan preset: %w", err)
	}
	p.Type = pipeline.PresetType(presetType)
	if len(inputJSON) > 0 && string(inputJSON) != "null" {
		json.Unmarshal(inputJSON, &p.InputSnapshot)
	}
	if len(recipeJSON) > 0 && string(recipeJSON) != "null" {
		json.Unmarshal(recipeJSON, &p.StyleRecipeData)
	}
	if len(brandJSON) > 0 && string(brandJSON) != "null" {
		json.Unmarshal(brandJSON, &p.BrandKit)
	}
	return p, nil
}

func (d *SQLDB) GetPreset(ctx context.Context, id string) (*Preset, error) {
	row := d.Pool.QueryRowContext(ctx,
		`SELECT id, name, user_id, version, model_id, pipeline_version, preset_type, input_snapshot, style_recipe, brand_kit, usage_count, last_used_at, created_at, updated_at
		 FROM presets WHERE id = $1`, id)
	p, err := d.scanPreset(row)
	if nf, ok := err.(*NotFound); ok {
		nf.ID = id
		return nil, nf
	}
	return p, err
}

func (d *SQLDB) ListPresets(ctx context.Context, userID string, presetType pipeline.PresetType) ([]*Preset, error) {
	var rows *sql.Rows
	var err error
	if presetType != "" {
		rows, err = d.Pool.QueryContext(ctx,
			`SELECT id, name, user_id, version, model_id, pipeline_version, preset_type, input_snapshot, style_recipe, brand_kit, usage_count, last_used_at, created_at, updated_at
			 FROM presets WHERE user_id = $1 AND preset_type = $2 ORDER BY updated_at DESC`, userID, string(presetType))
	} else {
		rows, err = d.Pool.QueryContext(ctx,
			`SELECT id, name, user_id, version, model_id, pipeline_version, preset_type, input_snapshot, style_recipe, brand_kit, usage_count, last_used_at, created_at, updated_at
			 FROM presets WHERE user_id = $1 ORDER BY updated_at DESC`, userID)
	}
	if err != nil {
		return nil, fmt.Errorf("list presets: %w", err)
	}
	defer rows.Close()

	var out []*Preset
	for rows.Next() {
		p := &Preset{}
		var presetType string
		var inputJSON, recipeJSON, brandJSON []byte
		if err := rows.Scan(&p.ID, &p.Name, &p.UserID, &p.Version, &p.ModelID, &p.PipelineVersion, &presetType,
			&inputJSON, &recipeJSON, &brandJSON, &p.UsageCount, &p.LastUsedAt, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan preset: %w", err)
		}
		p.Type = pipeline.PresetType(presetType)
		if len(inputJSON) > 0 && string(inputJSON) != "null" {
			json.Unmarshal(inputJSON, &p.InputSnapshot)
		}
		if len(recipeJSON) > 0 && string(recipeJSON) != "null" {
			json.Unmarshal(recipeJSON, &p.StyleRecipeData)
		}
		if len(brandJSON) > 0 && string(brandJSON) != "null" {
			json.Unmarshal(brandJSON, &p.BrandKit)
		}
		out = append(out, p)
	}
	return out, nil
}

func (d *SQLDB) UpdatePreset(ctx context.Context, p *Preset) (int64, error) {
	inputJSON, _ := json.Marshal(p.InputSnapshot)
	recipeJSON, _ := json.Marshal(p.StyleRecipeData)
	brandJSON, _ := json.Marshal(p.BrandKit)
	res, err := d.Pool.ExecContext(ctx,
		`UPDATE presets SET name=$1, model_id=$2, pipeline_version=$3, input_snapshot=$4, style_recipe=$5, brand_kit=$6, version=version+1, updated_at=NOW()
		 WHERE id=$7 AND version=$8`,
		p.Name, p.ModelID, p.PipelineVersion, inputJSON, recipeJSON, brandJSON, p.ID, p.Version,
	)
	if err != nil {
		return 0, fmt.Errorf("update preset: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func (d *SQLDB) DeletePreset(ctx context.Context, id string) error {
	_, err := d.Pool.ExecContext(ctx, `DELETE FROM presets WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete preset: %w", err)
	}
	return nil
}

func (d *SQLDB) TouchPreset(ctx context.Context, id string) error {
	_, err := d.Pool.ExecContext(ctx,
		`UPDATE presets SET usage_count = usage_count + 1, last_used_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("touch preset: %w", err)
	}
	return nil
}

// PersistentRepository wraps MemoryRepository with a PostgreSQL backend.
// Writes go to both. Get tries memory first, falling back to the DB on miss;
// List queries the DB first and falls back to memory only when the DB query
// fails. Mirrors the teacher's PersistentPipelineRepository.
type PersistentRepository struct {
	mem *MemoryRepository
	db  DB
}

func NewPersistentRepository(mem *MemoryRepository, db DB) *PersistentRepository {
	return &PersistentRepository{mem: mem, db: db}
}

func (r *PersistentRepository) Create(ctx context.Context, p *Preset) error {
	if err := r.mem.Create(ctx, p); err != nil {
		return err
	}
	if err := r.db.CreatePreset(ctx, p); err != nil {
		return fmt.Errorf("db create preset: %w", err)
	}
	return nil
}

func (r *PersistentRepository) Get(ctx context.Context, id, userID string) (*Preset, error) {
	if p, err := r.mem.Get(ctx, id, userID); err == nil {
		return p, nil
	}
	p, err := r.db.GetPreset(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.UserID != userID {
		return nil, &Forbidden{ID: id}
	}
	r.mem.Put(p)
	return p, nil
}

func (r *PersistentRepository) List(ctx context.Context, userID string, presetType pipeline.PresetType) ([]*Preset, error) {
	presets, err := r.db.ListPresets(ctx, userID, presetType)
	if err == nil {
		return presets, nil
	}
	slog.Warn("db list presets failed, falling back to in-memory", "err", err)
	return r.mem.List(ctx, userID, presetType)
}

// Update performs the version CAS at the DB layer. A rowsAffected of 0 means
// the stored version moved on; re-read to discover the current version.
func (r *PersistentRepository) Update(ctx context.Context, p *Preset) error {
	n, err := r.db.UpdatePreset(ctx, p)
	if err != nil {
		return fmt.Errorf("db update preset: %w", err)
	}
	if n == 0 {
		current, getErr := r.db.GetPreset(ctx, p.ID)
		actual := p.Version
		if getErr == nil {
			actual = current.Version
		}
		return &pipeline.PresetVersionConflict{PresetID: p.ID, ExpectedVersion: p.Version, ActualVersion: actual}
	}
	cached := *p
	cached.Version = p.Version + 1
	r.mem.Put(&cached)
	return nil
}

func (r *PersistentRepository) Delete(ctx context.Context, id, userID string) error {
	_ = r.mem.Delete(ctx, id, userID)
	if err := r.db.DeletePreset(ctx, id); err != nil {
		return fmt.Errorf("db delete preset: %w", err)
	}
	return nil
}

func (r *PersistentRepository) Touch(ctx context.Context, id string) error {
	_ = r.mem.Touch(ctx, id)
	if err := r.db.TouchPreset(ctx, id); err != nil {
		return fmt.Errorf("db touch preset: %w", err)
	}
	return nil
}
