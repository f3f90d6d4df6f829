package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// Message content is capped so a runaway model reply cannot bloat the log.
const maxMessageLength = 5000

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dataSourceName string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err = db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err = store.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) initSchema() error {
	schema := `
    CREATE TABLE IF NOT EXISTS users (
        id TEXT PRIMARY KEY, -- UUID
        email TEXT UNIQUE NOT NULL,
        name TEXT NOT NULL DEFAULT '',
        hashed_password TEXT NOT NULL DEFAULT '',
        created_at DATETIME DEFAULT CURRENT_TIMESTAMP
    );

    CREATE TABLE IF NOT EXISTS tasks (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        user_id TEXT NOT NULL,
        title TEXT NOT NULL,
        description TEXT,
        completed BOOLEAN NOT NULL DEFAULT FALSE,
        created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
        updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
        FOREIGN KEY (user_id) REFERENCES users (id)
    );
    CREATE INDEX IF NOT EXISTS idx_tasks_user_id ON tasks (user_id);
    CREATE INDEX IF NOT EXISTS idx_tasks_completed ON tasks (completed);

    CREATE TABLE IF NOT EXISTS conversations (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        user_id TEXT NOT NULL,
        created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
        updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
        FOREIGN KEY (user_id) REFERENCES users (id)
    );
    CREATE INDEX IF NOT EXISTS idx_conversations_user_id ON conversations (user_id);

    CREATE TABLE IF NOT EXISTS messages (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        conversation_id INTEGER NOT NULL,
        user_id TEXT NOT NULL,
        role TEXT NOT NULL CHECK (role IN ('user', 'assistant')),
        content TEXT NOT NULL,
        created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
        FOREIGN KEY (conversation_id) REFERENCES conversations (id),
        FOREIGN KEY (user_id) REFERENCES users (id)
    );
    CREATE INDEX IF NOT EXISTS idx_messages_conversation_id ON messages (conversation_id);
    `
	_, err := s.db.Exec(schema)
	return err
}

// User methods

func (s *SQLiteStore) CreateUser(user *User) error {
	user.CreatedAt = time.Now().UTC()
	_, err := s.db.Exec(
		"INSERT INTO users (id, email, name, hashed_password, created_at) VALUES (?, ?, ?, ?, ?)",
		user.ID, user.Email, user.Name, user.HashedPassword, user.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetUserByEmail(email string) (*User, error) {
	var user User
	err := s.db.QueryRow(
		"SELECT id, email, name, hashed_password, created_at FROM users WHERE email = ?", email,
	).Scan(&user.ID, &user.Email, &user.Name, &user.HashedPassword, &user.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // User not found
		}
		return nil, fmt.Errorf("failed to query user by email: %w", err)
	}
	return &user, nil
}

func (s *SQLiteStore) GetUserByID(id string) (*User, error) {
	var user User
	err := s.db.QueryRow(
		"SELECT id, email, name, hashed_password, created_at FROM users WHERE id = ?", id,
	).Scan(&user.ID, &user.Email, &user.Name, &user.HashedPassword, &user.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query user by id: %w", err)
	}
	return &user, nil
}

// GetOrCreateUser resolves a user from verified token claims, creating the
// row on first authenticated request. The created row has no password hash;
// the token issuer already vouched for the identity.
func (s *SQLiteStore) GetOrCreateUser(id, email, name string) (*User, error) {
	user, err := s.GetUserByID(id)
	if err != nil {
		return nil, err
	}
	if user != nil {
		return user, nil
	}

	user = &User{ID: id, Email: email, Name: name}
	if err := s.CreateUser(user); err != nil {
		return nil, err
	}
	return user, nil
}

// Task methods

func (s *SQLiteStore) CreateTask(userID, title string, description *string) (*Task, error) {
	now := time.Now().UTC()
	res, err := s.db.Exec(
		"INSERT INTO tasks (user_id, title, description, completed, created_at, updated_at) VALUES (?, ?, ?, FALSE, ?, ?)",
		userID, title, description, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert task: %w", err)
	}
	id, _ := res.LastInsertId()
	return s.GetTask(id)
}

// GetTask looks a task up by id alone. Ownership is the caller's concern:
// the tool executor needs to tell "missing" apart from "not yours".
func (s *SQLiteStore) GetTask(id int64) (*Task, error) {
	var task Task
	var description sql.NullString
	err := s.db.QueryRow(
		"SELECT id, user_id, title, description, completed, created_at, updated_at FROM tasks WHERE id = ?", id,
	).Scan(&task.ID, &task.UserID, &task.Title, &description, &task.Completed, &task.CreatedAt, &task.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	if description.Valid {
		task.Description = &description.String
	}
	return &task, nil
}

func (s *SQLiteStore) ListTasks(userID, status, sort string) ([]Task, error) {
	query := "SELECT id, user_id, title, description, completed, created_at, updated_at FROM tasks WHERE user_id = ?"

	switch status {
	case "completed":
		query += " AND completed = TRUE"
	case "pending":
		query += " AND completed = FALSE"
	default:
		// "all", empty, or anything unrecognized: no filter
	}

	switch sort {
	case "title":
		query += " ORDER BY title ASC"
	case "created":
		query += " ORDER BY created_at DESC"
	case "updated":
		query += " ORDER BY updated_at DESC"
	default:
		query += " ORDER BY id ASC"
	}

	rows, err := s.db.Query(query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}
	defer rows.Close()

	return scanTasks(rows)
}

func (s *SQLiteStore) SearchTasks(userID, query string) ([]Task, error) {
	pattern := "%" + strings.ToLower(query) + "%"
	rows, err := s.db.Query(
		"SELECT id, user_id, title, description, completed, created_at, updated_at FROM tasks WHERE user_id = ? AND LOWER(title) LIKE ? ORDER BY id ASC",
		userID, pattern,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to search tasks: %w", err)
	}
	defer rows.Close()

	return scanTasks(rows)
}

func scanTasks(rows *sql.Rows) ([]Task, error) {
	var tasks []Task
	for rows.Next() {
		var task Task
		var description sql.NullString
		if err := rows.Scan(&task.ID, &task.UserID, &task.Title, &description, &task.Completed, &task.CreatedAt, &task.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan task row: %w", err)
		}
		if description.Valid {
			task.Description = &description.String
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

// UpdateTask writes the task's mutable fields and refreshes updated_at.
func (s *SQLiteStore) UpdateTask(task *Task) error {
	task.UpdatedAt = time.Now().UTC()
	res, err := s.db.Exec(
		"UPDATE tasks SET title = ?, description = ?, completed = ?, updated_at = ? WHERE id = ?",
		task.Title, task.Description, task.Completed, task.UpdatedAt, task.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update task: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return fmt.Errorf("task not found, nothing updated")
	}
	return nil
}

func (s *SQLiteStore) DeleteTask(id int64) error {
	res, err := s.db.Exec("DELETE FROM tasks WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return fmt.Errorf("task not found, nothing deleted")
	}
	return nil
}

// Conversation methods

func (s *SQLiteStore) CreateConversation(userID string) (*Conversation, error) {
	now := time.Now().UTC()
	res, err := s.db.Exec(
		"INSERT INTO conversations (user_id, created_at, updated_at) VALUES (?, ?, ?)",
		userID, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert conversation: %w", err)
	}
	id, _ := res.LastInsertId()
	return &Conversation{ID: id, UserID: userID, CreatedAt: now, UpdatedAt: now}, nil
}

// GetConversation returns nil both when the conversation does not exist and
// when it belongs to another user, so callers cannot probe for foreign ids.
func (s *SQLiteStore) GetConversation(id int64, userID string) (*Conversation, error) {
	var conv Conversation
	err := s.db.QueryRow(
		"SELECT id, user_id, created_at, updated_at FROM conversations WHERE id = ? AND user_id = ?", id, userID,
	).Scan(&conv.ID, &conv.UserID, &conv.CreatedAt, &conv.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}
	return &conv, nil
}

// Message methods

// CreateMessage appends a message; messages are never updated or deleted.
func (s *SQLiteStore) CreateMessage(msg *Message) error {
	if len(msg.Content) > maxMessageLength {
		msg.Content = msg.Content[:maxMessageLength]
	}
	msg.CreatedAt = time.Now().UTC()

	res, err := s.db.Exec(
		"INSERT INTO messages (conversation_id, user_id, role, content, created_at) VALUES (?, ?, ?, ?, ?)",
		msg.ConversationID, msg.UserID, msg.Role, msg.Content, msg.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert message: %w", err)
	}
	msg.ID, _ = res.LastInsertId()

	_, err = s.db.Exec("UPDATE conversations SET updated_at = ? WHERE id = ?", msg.CreatedAt, msg.ConversationID)
	if err != nil {
		return fmt.Errorf("failed to touch conversation: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetMessagesByConversation(conversationID int64) ([]Message, error) {
	rows, err := s.db.Query(
		"SELECT id, conversation_id, user_id, role, content, created_at FROM messages WHERE conversation_id = ? ORDER BY created_at ASC, id ASC",
		conversationID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var msg Message
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &msg.UserID, &msg.Role, &msg.Content, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message row: %w", err)
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}
