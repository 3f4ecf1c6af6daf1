package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/mmynk/opensplit/internal/models"
	"github.com/mmynk/opensplit/internal/storage"
)

type groupRow struct {
	ID          string `db:"id"`
	Name        string `db:"name"`
	Description string `db:"description"`
	CreatedBy   string `db:"created_by"`
	CreatedAt   int64  `db:"created_at"`
	UpdatedAt   int64  `db:"updated_at"`
}

type memberRow struct {
	GroupID  string `db:"group_id"`
	UserID   string `db:"user_id"`
	Role     string `db:"role"`
	JoinedAt int64  `db:"joined_at"`
}

func (r groupRow) model() *models.Group {
	return &models.Group{
		ID:          r.ID,
		Name:        r.Name,
		Description: r.Description,
		CreatedBy:   r.CreatedBy,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

func (r memberRow) model() models.GroupMember {
	return models.GroupMember{GroupID: r.GroupID, UserID: r.UserID, Role: models.Role(r.Role), JoinedAt: r.JoinedAt}
}

// CreateGroup persists a new group and its members.
func (s *PostgresStore) CreateGroup(ctx context.Context, group *models.Group) error {
	if group.ID == "" {
		group.ID = uuid.New().String()
	}
	if group.CreatedAt == 0 {
		group.CreatedAt = time.Now().Unix()
	}
	group.UpdatedAt = group.CreatedAt

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.NamedExecContext(ctx,
		`INSERT INTO groups (id, name, description, created_by, created_at, updated_at)
		 VALUES (:id, :name, :description, :created_by, :created_at, :updated_at)`,
		groupRow{
			ID:          group.ID,
			Name:        group.Name,
			Description: group.Description,
			CreatedBy:   group.CreatedBy,
			CreatedAt:   group.CreatedAt,
			UpdatedAt:   group.UpdatedAt,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to insert group: %w", err)
	}

	for i := range group.Members {
		m := &group.Members[i]
		m.GroupID = group.ID
		if m.JoinedAt == 0 {
			m.JoinedAt = group.CreatedAt
		}
		if err := insertMember(ctx, tx, m); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// GetGroup retrieves a group and its members.
func (s *PostgresStore) GetGroup(ctx context.Context, groupID string) (*models.Group, error) {
	var row groupRow
	err := s.db.GetContext(ctx, &row, `SELECT * FROM groups WHERE id = $1`, groupID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("group", groupID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get group: %w", err)
	}

	group := row.model()
	if group.Members, err = s.LoadMembers(ctx, groupID); err != nil {
		return nil, err
	}
	return group, nil
}

// ListGroupsForUser returns the groups userID belongs to, newest first.
func (s *PostgresStore) ListGroupsForUser(ctx context.Context, userID string) ([]*models.Group, error) {
	var rows []groupRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT g.* FROM groups g
		 JOIN group_members m ON m.group_id = g.id
		 WHERE m.user_id = $1
		 ORDER BY g.created_at DESC, g.id`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list groups: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	groups := make([]*models.Group, len(rows))
	byID := make(map[string]*models.Group, len(rows))
	ids := make([]string, len(rows))
	for i, r := range rows {
		groups[i] = r.model()
		byID[r.ID] = groups[i]
		ids[i] = r.ID
	}

	var members []memberRow
	if err := s.selectIn(ctx, &members,
		`SELECT * FROM group_members WHERE group_id IN (?) ORDER BY joined_at, user_id`, ids); err != nil {
		return nil, fmt.Errorf("failed to get group members: %w", err)
	}
	for _, m := range members {
		g := byID[m.GroupID]
		g.Members = append(g.Members, m.model())
	}
	return groups, nil
}

// UpdateGroup updates a group's name and description.
func (s *PostgresStore) UpdateGroup(ctx context.Context, group *models.Group) error {
	group.UpdatedAt = time.Now().Unix()
	res, err := s.db.ExecContext(ctx,
		`UPDATE groups SET name = $1, description = $2, updated_at = $3 WHERE id = $4`,
		group.Name, group.Description, group.UpdatedAt, group.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update group: %w", err)
	}
	return expectAffected(res, "group", group.ID)
}

// DeleteGroup removes a group; members and settlements cascade.
func (s *PostgresStore) DeleteGroup(ctx context.Context, groupID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM groups WHERE id = $1`, groupID)
	if err != nil {
		return fmt.Errorf("failed to delete group: %w", err)
	}
	return expectAffected(res, "group", groupID)
}

// LoadMembers returns a group's members in join order.
func (s *PostgresStore) LoadMembers(ctx context.Context, groupID string) ([]models.GroupMember, error) {
	var rows []memberRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT * FROM group_members WHERE group_id = $1 ORDER BY joined_at, user_id`, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to get group members: %w", err)
	}
	var members []models.GroupMember
	for _, r := range rows {
		members = append(members, r.model())
	}
	return members, nil
}

// AddMember adds a user to an existing group.
func (s *PostgresStore) AddMember(ctx context.Context, member *models.GroupMember) error {
	if member.JoinedAt == 0 {
		member.JoinedAt = time.Now().Unix()
	}
	var exists bool
	err := s.db.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM groups WHERE id = $1)`, member.GroupID)
	if err != nil {
		return fmt.Errorf("failed to check group existence: %w", err)
	}
	if !exists {
		return notFound("group", member.GroupID)
	}
	return insertMember(ctx, s.db, member)
}

// RemoveMember removes a user from a group.
func (s *PostgresStore) RemoveMember(ctx context.Context, groupID, userID string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM group_members WHERE group_id = $1 AND user_id = $2`, groupID, userID)
	if err != nil {
		return fmt.Errorf("failed to remove member: %w", err)
	}
	return expectAffected(res, "member", userID)
}

func insertMember(ctx context.Context, e sqlx.ExtContext, m *models.GroupMember) error {
	_, err := sqlx.NamedExecContext(ctx, e,
		`INSERT INTO group_members (group_id, user_id, role, joined_at)
		 VALUES (:group_id, :user_id, :role, :joined_at)`,
		memberRow{GroupID: m.GroupID, UserID: m.UserID, Role: string(m.Role), JoinedAt: m.JoinedAt},
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%s: %w", m.UserID, storage.ErrAlreadyMember)
		}
		return fmt.Errorf("failed to insert member: %w", err)
	}
	return nil
}
