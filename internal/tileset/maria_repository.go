package tileset

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/annel0/autotile/internal/autotile"
	"github.com/annel0/autotile/internal/logging"
	_ "github.com/go-sql-driver/mysql"
)

// MariaConfig содержит настройки подключения к MariaDB
type MariaConfig struct {
	Host     string // например, localhost
	Port     int    // например, 3306
	Database string // например, autotile
	Username string // пользователь БД
	Password string // пароль БД
}

// MariaRepository хранит определения в таблице tile_definitions.
// Спрайты и атрибуты лежат в JSON колонках.
type MariaRepository struct {
	db *sql.DB
}

// attributesColumn содержимое колонки attributes.
type attributesColumn struct {
	Color     [4]uint8  `json:"color"`
	Transform []float32 `json:"transform,omitempty"`
	Flags     uint8     `json:"flags"`
	Collider  string    `json:"collider"`
}

// NewMariaRepository открывает подключение и создаёт таблицу при необходимости
func NewMariaRepository(cfg MariaConfig) (*MariaRepository, error) {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 3306
	}
	if cfg.Database == "" {
		cfg.Database = "autotile"
	}

	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		cfg.Username, cfg.Password, cfg.Host, cfg.Port, cfg.Database)

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("не удалось открыть подключение к MariaDB: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("не удалось подключиться к MariaDB: %w", err)
	}

	repo := &MariaRepository{db: db}
	if err := repo.createTables(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("не удалось создать таблицы: %w", err)
	}

	logging.Info("🗄️ MariaDB репозиторий тайлов подключён: %s:%d/%s", cfg.Host, cfg.Port, cfg.Database)
	return repo, nil
}

func (m *MariaRepository) createTables(ctx context.Context) error {
	const ddl = `
	CREATE TABLE IF NOT EXISTS tile_definitions (
		id SMALLINT UNSIGNED PRIMARY KEY,
		name VARCHAR(128) NOT NULL,
		sprites JSON NOT NULL,
		attributes JSON NOT NULL,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci;`

	_, err := m.db.ExecContext(ctx, ddl)
	return err
}

func (m *MariaRepository) Get(ctx context.Context, id autotile.TileID) (Definition, error) {
	row := m.db.QueryRowContext(ctx,
		`SELECT id, name, sprites, attributes FROM tile_definitions WHERE id = ?`, uint16(id))

	d, err := scanDefinition(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Definition{}, ErrDefinitionNotFound
	}
	return d, err
}

func (m *MariaRepository) List(ctx context.Context) ([]Definition, error) {
	rows, err := m.db.QueryContext(ctx,
		`SELECT id, name, sprites, attributes FROM tile_definitions ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("ошибка запроса определений: %w", err)
	}
	defer rows.Close()

	var defs []Definition
	for rows.Next() {
		d, err := scanDefinition(rows)
		if err != nil {
			return nil, err
		}
		defs = append(defs, d)
	}
	return defs, rows.Err()
}

func (m *MariaRepository) Save(ctx context.Context, def Definition) error {
	if err := def.Validate(); err != nil {
		return err
	}

	sprites, err := json.Marshal(def.Sprites)
	if err != nil {
		return err
	}
	attrs, err := json.Marshal(attributesColumn{
		Color:     def.Color,
		Transform: def.Transform,
		Flags:     def.Flags,
		Collider:  def.Collider,
	})
	if err != nil {
		return err
	}

	_, err = m.db.ExecContext(ctx, `
		INSERT INTO tile_definitions (id, name, sprites, attributes) VALUES (?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE name = VALUES(name), sprites = VALUES(sprites), attributes = VALUES(attributes)`,
		uint16(def.ID), def.Name, string(sprites), string(attrs))
	if err != nil {
		return fmt.Errorf("ошибка сохранения определения %d: %w", def.ID, err)
	}
	return nil
}

func (m *MariaRepository) Delete(ctx context.Context, id autotile.TileID) error {
	res, err := m.db.ExecContext(ctx, `DELETE FROM tile_definitions WHERE id = ?`, uint16(id))
	if err != nil {
		return fmt.Errorf("ошибка удаления определения %d: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrDefinitionNotFound
	}
	return nil
}

// Close закрывает подключение к БД
func (m *MariaRepository) Close() error {
	return m.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDefinition(row rowScanner) (Definition, error) {
	var (
		id             uint16
		name           string
		sprites, attrs []byte
	)
	if err := row.Scan(&id, &name, &sprites, &attrs); err != nil {
		return Definition{}, err
	}

	d := Definition{ID: autotile.TileID(id), Name: name}
	if err := json.Unmarshal(sprites, &d.Sprites); err != nil {
		return Definition{}, fmt.Errorf("спрайты определения %d: %w", id, err)
	}
	var a attributesColumn
	if err := json.Unmarshal(attrs, &a); err != nil {
		return Definition{}, fmt.Errorf("атрибуты определения %d: %w", id, err)
	}
	d.Color, d.Transform, d.Flags, d.Collider = a.Color, a.Transform, a.Flags, a.Collider
	return d, nil
}
