package chat

import "github.com/nfrund/classroom/internal/domain"

// roster is the ordered participant list of the room, guarded by the
// session mutex.
type roster struct {
	users map[string]domain.User
	order []string
}

func newRoster() *roster {
	return &roster{users: make(map[string]domain.User)}
}

func (r *roster) add(u domain.User) {
	if u.ID == "" {
		return
	}
	if _, ok := r.users[u.ID]; !ok {
		r.order = append(r.order, u.ID)
	}
	if u.Username == "" {
		if known, ok := r.users[u.ID]; ok {
			u = known
		} else {
			u.Username = domain.UnknownUsername
		}
	}
	r.users[u.ID] = u
}

func (r *roster) remove(userID string) {
	if _, ok := r.users[userID]; !ok {
		return
	}
	delete(r.users, userID)
	for i, id := range r.order {
		if id == userID {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

func (r *roster) reset(users []domain.User) {
	r.users = make(map[string]domain.User, len(users))
	r.order = r.order[:0]
	for _, u := range users {
		r.add(u)
	}
}

func (r *roster) list() []domain.User {
	out := make([]domain.User, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.users[id])
	}
	return out
}
