// Package slotindex maintains the graph-shaped secondary index of room/slot
// occupancy. The index is derived from the session store and may be rebuilt
// from it at any time.
package slotindex

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	"classroom/internal/model"
)

//go:embed schema.sql
var schemaSQL string

// Node kinds.
const (
	KindRoom       = "room"
	KindSlot       = "slot"
	KindSession    = "session"
	KindInstructor = "instructor"
)

// Edge kinds. Each is single-valued per source node.
const (
	EdgeInRoom        = "IN_ROOM"
	EdgeAtSlot        = "AT_SLOT"
	EdgeTaughtBy      = "TAUGHT_BY"
	EdgeSubstitutedBy = "SUBSTITUTED_BY"
)

// Graph is the slot index, stored as nodes and edges in SQLite.
type Graph struct {
	db *sql.DB
}

// Occupant is a session attached to a slot on a date.
type Occupant struct {
	SessionID    string
	RoomID       string
	InstructorID string
}

// Query selects active sessions attached to a slot on a date.
// RoomID and ExcludeSessionID are optional.
type Query struct {
	SlotID           string
	Date             model.Date
	RoomID           string
	ExcludeSessionID string
}

// Stats counts the index contents.
type Stats struct {
	Nodes int `json:"nodes"`
	Edges int `json:"edges"`
}

// Open opens (creating if needed) the index database at path.
func Open(path string) (*Graph, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("slot index path is required")
	}
	cleanPath := filepath.Clean(path)
	if dir := filepath.Dir(cleanPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create slot index dir: %w", err)
		}
	}

	dsn := cleanPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", cleanPath, err)
	}
	db.SetMaxOpenConns(4)

	if _, err := db.Exec(schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply slot index schema: %w", err)
	}
	return &Graph{db: db}, nil
}

// Close closes the index database.
func (g *Graph) Close() error {
	if g == nil || g.db == nil {
		return nil
	}
	return g.db.Close()
}

// Ping verifies the index is reachable.
func (g *Graph) Ping(ctx context.Context) error {
	return g.db.PingContext(ctx)
}

// Occupants returns the active sessions matching q.
func (g *Graph) Occupants(ctx context.Context, q Query) ([]Occupant, error) {
	roomNode := ""
	if q.RoomID != "" {
		roomNode = nodeID(KindRoom, q.RoomID)
	}
	rows, err := g.db.QueryContext(ctx, `
		SELECT n.id, r.dst, COALESCE(t.dst, '')
		FROM nodes n
		JOIN edges s ON s.src = n.id AND s.kind = ?
		JOIN edges r ON r.src = n.id AND r.kind = ?
		LEFT JOIN edges t ON t.src = n.id AND t.kind = ?
		WHERE n.kind = ?
		  AND n.session_date = ?
		  AND n.status <> ?
		  AND s.dst = ?
		  AND (? = '' OR r.dst = ?)
		  AND n.id <> ?
		ORDER BY n.id`,
		EdgeAtSlot, EdgeInRoom, EdgeTaughtBy,
		KindSession,
		q.Date.String(),
		string(model.SessionCancelled),
		nodeID(KindSlot, q.SlotID),
		roomNode, roomNode,
		nodeID(KindSession, q.ExcludeSessionID),
	)
	if err != nil {
		return nil, fmt.Errorf("query occupants: %w", err)
	}
	defer rows.Close()

	var out []Occupant
	for rows.Next() {
		var sessionNode, room, instructor string
		if err := rows.Scan(&sessionNode, &room, &instructor); err != nil {
			return nil, fmt.Errorf("scan occupant: %w", err)
		}
		out = append(out, Occupant{
			SessionID:    trimKind(sessionNode),
			RoomID:       trimKind(room),
			InstructorID: trimKind(instructor),
		})
	}
	return out, rows.Err()
}

// Stats counts nodes and edges.
func (g *Graph) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	if err := g.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM nodes`).Scan(&st.Nodes); err != nil {
		return Stats{}, fmt.Errorf("count nodes: %w", err)
	}
	if err := g.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM edges`).Scan(&st.Edges); err != nil {
		return Stats{}, fmt.Errorf("count edges: %w", err)
	}
	return st, nil
}

// applySession merges the session, its room, slot and instructor nodes and the
// edges between them. Writes carrying an older version than the stored one are
// ignored.
func (g *Graph) applySession(ctx context.Context, sess model.Session, slotID string) error {
	window, err := WindowFor(sess.StartTime)
	if err != nil {
		return err
	}
	version := sess.UpdatedAt.UnixMicro()
	sessionNode := nodeID(KindSession, sess.ID)
	roomNode := nodeID(KindRoom, sess.RoomID)
	slotNode := nodeID(KindSlot, slotID)
	instructorNode := nodeID(KindInstructor, sess.InstructorID)

	sessionProps := map[string]string{
		"course_id":  sess.CourseID,
		"start_time": sess.StartTime,
		"end_time":   sess.EndTime,
	}
	if sess.OriginSessionID != nil {
		sessionProps["origin_session_id"] = *sess.OriginSessionID
	}

	return g.inTx(ctx, func(tx *sql.Tx) error {
		nodes := []node{
			{id: roomNode, kind: KindRoom, props: map[string]string{"room_id": sess.RoomID}},
			{id: slotNode, kind: KindSlot, props: map[string]string{"weekday": weekdayKey(sess.Date), "window": string(window)}},
			{id: instructorNode, kind: KindInstructor, props: map[string]string{"instructor_id": sess.InstructorID}},
			{id: sessionNode, kind: KindSession, date: sess.Date.String(), status: string(sess.Status), props: sessionProps, version: version},
		}
		for _, n := range nodes {
			if err := upsertNode(ctx, tx, n); err != nil {
				return err
			}
		}
		edges := []edge{
			{src: sessionNode, kind: EdgeInRoom, dst: roomNode, version: version},
			{src: sessionNode, kind: EdgeAtSlot, dst: slotNode, version: version},
			{src: sessionNode, kind: EdgeTaughtBy, dst: instructorNode, version: version},
		}
		for _, e := range edges {
			if err := upsertEdge(ctx, tx, e); err != nil {
				return err
			}
		}
		return nil
	})
}

// applySubstitution attaches the replacement instructor to the session.
func (g *Graph) applySubstitution(ctx context.Context, sessionID, instructorID string, version int64) error {
	instructorNode := nodeID(KindInstructor, instructorID)
	return g.inTx(ctx, func(tx *sql.Tx) error {
		if err := upsertNode(ctx, tx, node{id: instructorNode, kind: KindInstructor, props: map[string]string{"instructor_id": instructorID}}); err != nil {
			return err
		}
		return upsertEdge(ctx, tx, edge{src: nodeID(KindSession, sessionID), kind: EdgeSubstitutedBy, dst: instructorNode, version: version})
	})
}

// clear empties the index. Only a full rebuild may call it.
func (g *Graph) clear(ctx context.Context) error {
	return g.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM edges`); err != nil {
			return fmt.Errorf("clear edges: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM nodes`); err != nil {
			return fmt.Errorf("clear nodes: %w", err)
		}
		return nil
	})
}

type node struct {
	id      string
	kind    string
	date    string
	status  string
	props   map[string]string
	version int64
}

type edge struct {
	src     string
	kind    string
	dst     string
	version int64
}

func upsertNode(ctx context.Context, tx *sql.Tx, n node) error {
	props, err := json.Marshal(n.props)
	if err != nil {
		return fmt.Errorf("encode node %s props: %w", n.id, err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO nodes (id, kind, session_date, status, props, version)
		VALUES (?, ?, NULLIF(?, ''), NULLIF(?, ''), ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			kind = excluded.kind,
			session_date = excluded.session_date,
			status = excluded.status,
			props = excluded.props,
			version = excluded.version
		WHERE excluded.version >= nodes.version`,
		n.id, n.kind, n.date, n.status, string(props), n.version,
	)
	if err != nil {
		return fmt.Errorf("upsert node %s: %w", n.id, err)
	}
	return nil
}

func upsertEdge(ctx context.Context, tx *sql.Tx, e edge) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO edges (src, kind, dst, version)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (src, kind) DO UPDATE SET
			dst = excluded.dst,
			version = excluded.version
		WHERE excluded.version >= edges.version`,
		e.src, e.kind, e.dst, e.version,
	)
	if err != nil {
		return fmt.Errorf("upsert edge %s-%s: %w", e.src, e.kind, err)
	}
	return nil
}

func (g *Graph) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := g.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin index transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit index transaction: %w", err)
	}
	return nil
}

func nodeID(kind, id string) string {
	return kind + ":" + id
}

func trimKind(id string) string {
	_, rest, ok := strings.Cut(id, ":")
	if !ok {
		return id
	}
	return rest
}
