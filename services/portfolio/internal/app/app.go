package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/mail"
	"path/filepath"
	"strings"

	"portfolio/internal/util"
	"portfolio/pkg/auth"
	"portfolio/pkg/domain"
	"portfolio/pkg/notify"
	"portfolio/pkg/storage"
	"portfolio/pkg/store"
)

// Config holds the collaborators of the core application.
type Config struct {
	Store store.Store
	// Objects stores uploaded images; nil disables uploads.
	Objects           storage.ObjectStore
	Notifier          notify.Notifier
	MaxUploadBytes    int64
	AllowedExtensions []string
}

// App validates input and applies defaults on top of the store.
type App struct {
	store          store.Store
	objects        storage.ObjectStore
	notifier       notify.Notifier
	maxUploadBytes int64
	allowedExt     map[string]struct{}
}

func New(cfg Config) (*App, error) {
	if cfg.Store == nil {
		return nil, errors.New("store required")
	}
	if cfg.Notifier == nil {
		cfg.Notifier = notify.Nop{}
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 10 << 20
	}
	allowed := make(map[string]struct{}, len(cfg.AllowedExtensions))
	for _, ext := range cfg.AllowedExtensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		allowed[ext] = struct{}{}
	}
	return &App{
		store:          cfg.Store,
		objects:        cfg.Objects,
		notifier:       cfg.Notifier,
		maxUploadBytes: cfg.MaxUploadBytes,
		allowedExt:     allowed,
	}, nil
}

// Login checks email and password against the users table.
func (a *App) Login(ctx context.Context, email, password string) (domain.User, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return domain.User{}, ErrInvalidCredentials
	}
	user, ok, err := a.store.GetUserByEmail(ctx, email)
	if err != nil {
		return domain.User{}, fmt.Errorf("fetch user: %w", err)
	}
	if !ok || !auth.CheckPassword(password, user.PasswordHash) {
		return domain.User{}, ErrInvalidCredentials
	}
	return user, nil
}

// UserByID resolves the user behind a session.
func (a *App) UserByID(ctx context.Context, id int64) (domain.User, error) {
	if id <= 0 {
		return domain.User{}, ErrUnauthenticated
	}
	user, ok, err := a.store.GetUserByID(ctx, id)
	if err != nil {
		return domain.User{}, fmt.Errorf("fetch user: %w", err)
	}
	if !ok {
		return domain.User{}, ErrUnauthenticated
	}
	return user, nil
}

// SeedAdmin creates the admin user or resets its password.
func (a *App) SeedAdmin(ctx context.Context, email, password string) (domain.User, error) {
	email = normalizeEmail(email)
	if _, err := mail.ParseAddress(email); err != nil {
		return domain.User{}, invalid("a valid admin email is required")
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return domain.User{}, invalid("admin password is required")
	}
	user, err := a.store.SaveUser(ctx, domain.User{Email: email, PasswordHash: hash})
	if err != nil {
		return domain.User{}, fmt.Errorf("save admin: %w", err)
	}
	return user, nil
}

// EnsureAdmin seeds the admin only when no user with that email exists.
// The bool reports whether a user was created.
func (a *App) EnsureAdmin(ctx context.Context, email, password string) (domain.User, bool, error) {
	existing, ok, err := a.store.GetUserByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return domain.User{}, false, fmt.Errorf("fetch admin: %w", err)
	}
	if ok {
		return existing, false, nil
	}
	user, err := a.SeedAdmin(ctx, email, password)
	if err != nil {
		return domain.User{}, false, err
	}
	return user, true, nil
}

// PortfolioInput is the editable part of a portfolio item.
type PortfolioInput struct {
	Title       string   `json:"title"`
	Description *string  `json:"description"`
	Category    string   `json:"category"`
	ImageURL    string   `json:"imageUrl"`
	Tags        []string `json:"tags"`
}

func (in PortfolioInput) item() (domain.PortfolioItem, error) {
	item := domain.PortfolioItem{
		Title:    strings.TrimSpace(in.Title),
		Category: strings.TrimSpace(in.Category),
		ImageURL: strings.TrimSpace(in.ImageURL),
		Tags:     make([]string, 0, len(in.Tags)),
	}
	switch {
	case item.Title == "":
		return item, invalid("title is required")
	case item.Category == "":
		return item, invalid("category is required")
	case item.ImageURL == "":
		return item, invalid("imageUrl is required")
	}
	if in.Description != nil {
		if d := strings.TrimSpace(*in.Description); d != "" {
			item.Description = &d
		}
	}
	for _, tag := range in.Tags {
		if tag = strings.TrimSpace(tag); tag != "" {
			item.Tags = append(item.Tags, tag)
		}
	}
	return item, nil
}

func (a *App) ListPortfolioItems(ctx context.Context) ([]domain.PortfolioItem, error) {
	items, err := a.store.ListPortfolioItems(ctx)
	if err != nil {
		return nil, fmt.Errorf("list portfolio items: %w", err)
	}
	return items, nil
}

func (a *App) CreatePortfolioItem(ctx context.Context, in PortfolioInput) (domain.PortfolioItem, error) {
	item, err := in.item()
	if err != nil {
		return domain.PortfolioItem{}, err
	}
	created, err := a.store.CreatePortfolioItem(ctx, item)
	if err != nil {
		return domain.PortfolioItem{}, fmt.Errorf("create portfolio item: %w", err)
	}
	return created, nil
}

// UpdatePortfolioItem overwrites every editable field of item id.
func (a *App) UpdatePortfolioItem(ctx context.Context, id int64, in PortfolioInput) (domain.PortfolioItem, error) {
	item, err := in.item()
	if err != nil {
		return domain.PortfolioItem{}, err
	}
	prev, ok, err := a.store.GetPortfolioItem(ctx, id)
	if err != nil {
		return domain.PortfolioItem{}, fmt.Errorf("load portfolio item: %w", err)
	}
	if !ok {
		return domain.PortfolioItem{}, ErrNotFound
	}
	updated, err := a.store.UpdatePortfolioItem(ctx, id, item)
	if errors.Is(err, store.ErrNotFound) {
		return domain.PortfolioItem{}, ErrNotFound
	}
	if err != nil {
		return domain.PortfolioItem{}, fmt.Errorf("update portfolio item: %w", err)
	}
	if prev.ImageURL != updated.ImageURL {
		a.releaseImage(ctx, prev.ImageURL)
	}
	return updated, nil
}

// DeletePortfolioItem removes item id and the uploaded image only it referenced.
func (a *App) DeletePortfolioItem(ctx context.Context, id int64) error {
	prev, ok, err := a.store.GetPortfolioItem(ctx, id)
	if err != nil {
		return fmt.Errorf("load portfolio item: %w", err)
	}
	if !ok {
		return ErrNotFound
	}
	err = a.store.DeletePortfolioItem(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("delete portfolio item: %w", err)
	}
	a.releaseImage(ctx, prev.ImageURL)
	return nil
}

// releaseImage deletes an uploaded image once no item points at it.
// Failures are logged; the item change has already been committed.
func (a *App) releaseImage(ctx context.Context, imageURL string) {
	if a.objects == nil {
		return
	}
	key, ok := a.objects.KeyForURL(imageURL)
	if !ok || !strings.HasPrefix(key, storage.ImagePrefix) {
		return
	}
	logger := util.LoggerFromContext(ctx)
	items, err := a.store.ListPortfolioItems(ctx)
	if err != nil {
		logger.Warn("skip image cleanup", "key", key, "err", err)
		return
	}
	for _, item := range items {
		if item.ImageURL == imageURL {
			return
		}
	}
	if err := a.objects.Delete(ctx, key); err != nil {
		logger.Warn("delete unused image failed", "key", key, "err", err)
	}
}

// ContactInput is a contact form submission.
type ContactInput struct {
	Name        string `json:"name"`
	Email       string `json:"email"`
	Message     string `json:"message"`
	ProjectType string `json:"projectType"`
}

// SubmitContact stores a submission and then notifies. Notification
// failures are logged and do not fail the submission.
func (a *App) SubmitContact(ctx context.Context, in ContactInput) (domain.Contact, error) {
	c := domain.Contact{
		Name:        strings.TrimSpace(in.Name),
		Email:       strings.TrimSpace(in.Email),
		Message:     strings.TrimSpace(in.Message),
		ProjectType: strings.TrimSpace(in.ProjectType),
	}
	switch {
	case c.Name == "":
		return domain.Contact{}, invalid("name is required")
	case c.Email == "":
		return domain.Contact{}, invalid("email is required")
	case c.Message == "":
		return domain.Contact{}, invalid("message is required")
	}
	if addr, err := mail.ParseAddress(c.Email); err != nil || addr.Address != c.Email {
		return domain.Contact{}, invalid("email must be a valid address")
	}
	if c.ProjectType == "" {
		c.ProjectType = domain.DefaultProjectType
	}
	created, err := a.store.CreateContact(ctx, c)
	if err != nil {
		return domain.Contact{}, fmt.Errorf("create contact: %w", err)
	}
	if err := a.notifier.ContactSubmitted(ctx, created); err != nil {
		util.LoggerFromContext(ctx).Warn("contact notification failed", "contact_id", created.ID, "err", err)
	}
	return created, nil
}

func (a *App) ListContacts(ctx context.Context) ([]domain.Contact, error) {
	contacts, err := a.store.ListContacts(ctx)
	if err != nil {
		return nil, fmt.Errorf("list contacts: %w", err)
	}
	return contacts, nil
}

// UploadsEnabled reports whether an object store is configured.
func (a *App) UploadsEnabled() bool {
	return a.objects != nil
}

// MaxUploadBytes is the largest accepted image.
func (a *App) MaxUploadBytes() int64 {
	return a.maxUploadBytes
}

// UploadImage stores an image under a fresh key and returns its public URL.
func (a *App) UploadImage(ctx context.Context, filename, contentType string, r io.Reader, size int64) (string, error) {
	if a.objects == nil {
		return "", ErrUploadsDisabled
	}
	ext := strings.ToLower(filepath.Ext(filename))
	if _, ok := a.allowedExt[ext]; !ok {
		return "", invalid("unsupported image type")
	}
	if size <= 0 {
		return "", invalid("file is empty")
	}
	if size > a.maxUploadBytes {
		return "", invalid("file too large")
	}
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = imageContentType(ext)
	}
	url, err := a.objects.Put(ctx, storage.NewImageKey(ext), r, size, contentType)
	if err != nil {
		return "", fmt.Errorf("store image: %w", err)
	}
	return url, nil
}

func imageContentType(ext string) string {
	switch ext {
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	case ".svg":
		return "image/svg+xml"
	default:
		return "application/octet-stream"
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
