package mirror

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"disaster-news-hub/internal/domain"
)

// SQLiteReadState — персистентный набор прочитанных ID на sqlite.
// Файл принадлежит клиентскому процессу; серверный синк сюда не пишет.
type SQLiteReadState struct {
	db *sql.DB
}

var _ domain.ReadState = (*SQLiteReadState)(nil)

// OpenReadState открывает (и при необходимости создаёт) файл состояния.
func OpenReadState(path string) (*SQLiteReadState, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("открыть файл состояния: %w", err)
	}
	// sqlite не любит конкурентных писателей в одном файле.
	db.SetMaxOpenConns(1)

	schema := `
CREATE TABLE IF NOT EXISTS read_articles (
	id TEXT PRIMARY KEY,
	read_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE TABLE IF NOT EXISTS read_notifications (
	id TEXT PRIMARY KEY,
	read_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("создать схему состояния: %w", err)
	}
	return &SQLiteReadState{db: db}, nil
}

// ReadArticles возвращает множество прочитанных ID статей.
func (s *SQLiteReadState) ReadArticles() (map[string]struct{}, error) {
	return s.readSet("read_articles")
}

// MarkArticleRead добавляет ID статьи. Повтор не является ошибкой.
func (s *SQLiteReadState) MarkArticleRead(id string) error {
	_, err := s.db.Exec(`INSERT OR IGNORE INTO read_articles (id) VALUES (?)`, id)
	if err != nil {
		return fmt.Errorf("сохранить прочитанность статьи: %w", err)
	}
	return nil
}

// ReadNotifications возвращает множество прочитанных ID уведомлений.
func (s *SQLiteReadState) ReadNotifications() (map[string]struct{}, error) {
	return s.readSet("read_notifications")
}

// MarkNotificationRead добавляет ID уведомления. Повтор не является ошибкой.
func (s *SQLiteReadState) MarkNotificationRead(id string) error {
	_, err := s.db.Exec(`INSERT OR IGNORE INTO read_notifications (id) VALUES (?)`, id)
	if err != nil {
		return fmt.Errorf("сохранить прочитанность уведомления: %w", err)
	}
	return nil
}

// Close закрывает файл состояния.
func (s *SQLiteReadState) Close() error {
	return s.db.Close()
}

func (s *SQLiteReadState) readSet(table string) (map[string]struct{}, error) {
	rows, err := s.db.Query(`SELECT id FROM ` + table)
	if err != nil {
		return nil, fmt.Errorf("прочитать %s: %w", table, err)
	}
	defer rows.Close()

	out := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("прочитать %s: %w", table, err)
		}
		out[id] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("прочитать %s: %w", table, err)
	}
	return out, nil
}
