package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	"portfolio/pkg/domain"
)

const migrateLockID int64 = 51730517

type GormStoreOptions struct {
	Now      func() time.Time
	LogLevel gormlogger.LogLevel
}

type GormStoreOption func(*GormStoreOptions)

// WithClock overrides the time source used for createdAt/updatedAt.
func WithClock(now func() time.Time) GormStoreOption {
	return func(opts *GormStoreOptions) {
		opts.Now = now
	}
}

// WithLogLevel sets the GORM logger level (default Warn).
func WithLogLevel(level gormlogger.LogLevel) GormStoreOption {
	return func(opts *GormStoreOptions) {
		opts.LogLevel = level
	}
}

// GormStore implements Store using GORM. Postgres is used for postgres://
// DSNs, SQLite for sqlite:// and file: DSNs.
type GormStore struct {
	db  *gorm.DB
	now func() time.Time
}

// NewGormStore opens the DB and runs auto-migrations.
func NewGormStore(dsn string, options ...GormStoreOption) (*GormStore, error) {
	opts := GormStoreOptions{Now: time.Now, LogLevel: gormlogger.Warn}
	for _, option := range options {
		if option != nil {
			option(&opts)
		}
	}
	dialector, isPostgres, err := openDialector(dsn)
	if err != nil {
		return nil, err
	}

	gormLog := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  opts.LogLevel,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(dialector, &gorm.Config{Logger: gormLog})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if !isPostgres {
		// sqlite allows a single writer; serialize through one connection.
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("get sql db: %w", err)
		}
		sqlDB.SetMaxOpenConns(1)
	}

	migrate := func(tx *gorm.DB) error {
		if err := tx.AutoMigrate(&UserModel{}, &PortfolioItemModel{}, &ContactModel{}, &SessionModel{}); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
		return nil
	}
	if isPostgres {
		err = withMigrationLock(db, migrate)
	} else {
		err = migrate(db)
	}
	if err != nil {
		return nil, err
	}
	return &GormStore{db: db, now: opts.Now}, nil
}

func openDialector(dsn string) (gorm.Dialector, bool, error) {
	dsn = strings.TrimSpace(dsn)
	switch {
	case dsn == "":
		return nil, false, errors.New("database URL required")
	case strings.HasPrefix(dsn, "sqlite://"):
		return sqlite.Open(strings.TrimPrefix(dsn, "sqlite://")), false, nil
	case strings.HasPrefix(dsn, "file:"), dsn == ":memory:":
		return sqlite.Open(dsn), false, nil
	default:
		return postgres.Open(dsn), true, nil
	}
}

func withMigrationLock(db *gorm.DB, fn func(*gorm.DB) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("open sql conn: %w", err)
	}
	defer conn.Close()
	if err := execAdvisory(ctx, conn, "SELECT pg_advisory_lock($1)", migrateLockID); err != nil {
		return fmt.Errorf("acquire migrate lock: %w", err)
	}
	defer func() {
		_ = execAdvisory(ctx, conn, "SELECT pg_advisory_unlock($1)", migrateLockID)
	}()
	return fn(db)
}

func execAdvisory(ctx context.Context, conn *sql.Conn, query string, lockID int64) error {
	_, err := conn.ExecContext(ctx, query, lockID)
	return err
}

// DB exposes the underlying handle so the session store can share the pool.
func (s *GormStore) DB() *gorm.DB {
	return s.db
}

// Ping checks database connectivity.
func (s *GormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close releases the connection pool.
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// SaveUser inserts a user or replaces the password of the user with the same email.
func (s *GormStore) SaveUser(ctx context.Context, u domain.User) (domain.User, error) {
	var model UserModel
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("email = ?", u.Email).First(&model).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			model = userToModel(u)
			if model.CreatedAt.IsZero() {
				model.CreatedAt = s.now().UTC()
			}
			return tx.Create(&model).Error
		case err != nil:
			return err
		}
		model.PasswordHash = u.PasswordHash
		return tx.Model(&model).Update("password", u.PasswordHash).Error
	})
	if err != nil {
		return domain.User{}, err
	}
	return userFromModel(model), nil
}

// GetUserByEmail looks up a user by email.
func (s *GormStore) GetUserByEmail(ctx context.Context, email string) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.WithContext(ctx).Where("email = ?", email).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

// GetUserByID returns a user by ID.
func (s *GormStore) GetUserByID(ctx context.Context, id int64) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

// ListPortfolioItems returns all items ordered by creation time.
func (s *GormStore) ListPortfolioItems(ctx context.Context) ([]domain.PortfolioItem, error) {
	var models []PortfolioItemModel
	if err := s.db.WithContext(ctx).Order("created_at ASC, id ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.PortfolioItem, 0, len(models))
	for _, m := range models {
		res = append(res, portfolioItemFromModel(m))
	}
	return res, nil
}

func (s *GormStore) GetPortfolioItem(ctx context.Context, id int64) (domain.PortfolioItem, bool, error) {
	var model PortfolioItemModel
	err := s.db.WithContext(ctx).First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.PortfolioItem{}, false, nil
	}
	if err != nil {
		return domain.PortfolioItem{}, false, err
	}
	return portfolioItemFromModel(model), true, nil
}

// CreatePortfolioItem inserts an item; createdAt and updatedAt are set to the same instant.
func (s *GormStore) CreatePortfolioItem(ctx context.Context, item domain.PortfolioItem) (domain.PortfolioItem, error) {
	now := s.now().UTC()
	model := portfolioItemToModel(item)
	model.ID = 0
	model.CreatedAt = now
	model.UpdatedAt = now
	if err := s.db.WithContext(ctx).Create(&model).Error; err != nil {
		return domain.PortfolioItem{}, err
	}
	return portfolioItemFromModel(model), nil
}

// UpdatePortfolioItem overwrites every editable field of the item and bumps updatedAt.
func (s *GormStore) UpdatePortfolioItem(ctx context.Context, id int64, item domain.PortfolioItem) (domain.PortfolioItem, error) {
	var model PortfolioItemModel
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&model, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		updatedAt := s.now().UTC()
		if updatedAt.Before(model.CreatedAt) {
			updatedAt = model.CreatedAt
		}
		if updatedAt.Before(model.UpdatedAt) {
			updatedAt = model.UpdatedAt
		}
		next := portfolioItemToModel(item)
		if err := tx.Model(&PortfolioItemModel{}).Where("id = ?", id).Updates(map[string]any{
			"title":       next.Title,
			"description": next.Description,
			"category":    next.Category,
			"image_url":   next.ImageURL,
			"tags":        next.Tags,
			"updated_at":  updatedAt,
		}).Error; err != nil {
			return err
		}
		model.Title = next.Title
		model.Description = next.Description
		model.Category = next.Category
		model.ImageURL = next.ImageURL
		model.Tags = next.Tags
		model.UpdatedAt = updatedAt
		return nil
	})
	if err != nil {
		return domain.PortfolioItem{}, err
	}
	return portfolioItemFromModel(model), nil
}

// DeletePortfolioItem removes an item.
func (s *GormStore) DeletePortfolioItem(ctx context.Context, id int64) error {
	res := s.db.WithContext(ctx).Delete(&PortfolioItemModel{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// CreateContact records a contact form submission.
func (s *GormStore) CreateContact(ctx context.Context, c domain.Contact) (domain.Contact, error) {
	model := contactToModel(c)
	model.ID = 0
	model.CreatedAt = s.now().UTC()
	if err := s.db.WithContext(ctx).Create(&model).Error; err != nil {
		return domain.Contact{}, err
	}
	return contactFromModel(model), nil
}

// ListContacts returns all contacts ordered by creation time.
func (s *GormStore) ListContacts(ctx context.Context) ([]domain.Contact, error) {
	var models []ContactModel
	if err := s.db.WithContext(ctx).Order("created_at ASC, id ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Contact, 0, len(models))
	for _, m := range models {
		res = append(res, contactFromModel(m))
	}
	return res, nil
}

func userToModel(u domain.User) UserModel {
	return UserModel{
		ID:           u.ID,
		Email:        u.Email,
		PasswordHash: u.PasswordHash,
		CreatedAt:    u.CreatedAt,
	}
}

func userFromModel(m UserModel) domain.User {
	return domain.User{
		ID:           m.ID,
		Email:        m.Email,
		PasswordHash: m.PasswordHash,
		CreatedAt:    m.CreatedAt,
	}
}

func portfolioItemToModel(p domain.PortfolioItem) PortfolioItemModel {
	tags := p.Tags
	if tags == nil {
		tags = []string{}
	}
	return PortfolioItemModel{
		ID:          p.ID,
		Title:       p.Title,
		Description: p.Description,
		Category:    p.Category,
		ImageURL:    p.ImageURL,
		Tags:        datatypes.NewJSONSlice(tags),
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}

func portfolioItemFromModel(m PortfolioItemModel) domain.PortfolioItem {
	tags := []string(m.Tags)
	if tags == nil {
		tags = []string{}
	}
	return domain.PortfolioItem{
		ID:          m.ID,
		Title:       m.Title,
		Description: m.Description,
		Category:    m.Category,
		ImageURL:    m.ImageURL,
		Tags:        tags,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}

func contactToModel(c domain.Contact) ContactModel {
	return ContactModel{
		ID:          c.ID,
		Name:        c.Name,
		Email:       c.Email,
		Message:     c.Message,
		ProjectType: c.ProjectType,
		CreatedAt:   c.CreatedAt,
	}
}

func contactFromModel(m ContactModel) domain.Contact {
	return domain.Contact{
		ID:          m.ID,
		Name:        m.Name,
		Email:       m.Email,
		Message:     m.Message,
		ProjectType: m.ProjectType,
		CreatedAt:   m.CreatedAt,
	}
}
