package service

import (
	"context"
	"fmt"

	"github.com/cyp0633/libtodocal/event"
)

// MakeTodo creates and stores a new todo.
func (s *EventService) MakeTodo(ctx context.Context, params event.TodoMakeParams) (event.TodoEvent, error) {
	todo, err := event.NewTodoEvent(params, s.now())
	if err != nil {
		return event.TodoEvent{}, err
	}
	if err := s.repo.MakeTodo(ctx, todo); err != nil {
		s.logger.Error("failed to make todo", "error", err, "name", todo.Name)
		return event.TodoEvent{}, fmt.Errorf("make todo: %w", err)
	}
	s.logger.Info("todo made", "uuid", todo.UUID, "repeating", todo.Repeating != nil)
	return todo, nil
}

// UpdateTodo edits the todo id within params.Scope.
func (s *EventService) UpdateTodo(ctx context.Context, id string, params event.TodoEditParams) (event.TodoEditPlan, error) {
	origin, err := s.repo.GetTodo(ctx, id)
	if err != nil {
		return event.TodoEditPlan{}, fmt.Errorf("update todo %s: %w", id, err)
	}

	plan, err := event.ResolveTodoEdit(*origin, params)
	if err != nil {
		return event.TodoEditPlan{}, err
	}

	if err := s.replaceTodo(ctx, id, plan.Updated); err != nil {
		return event.TodoEditPlan{}, fmt.Errorf("update todo %s: %w", id, err)
	}
	if plan.Created != nil {
		if err := s.repo.MakeTodo(ctx, *plan.Created); err != nil {
			if rerr := s.restoreTodo(ctx, *origin, plan.Updated == nil); rerr != nil {
				s.logger.Error("failed to restore todo after split failure",
					"uuid", id, "error", rerr)
			}
			return event.TodoEditPlan{}, fmt.Errorf("update todo %s: create %s: %w", id, plan.Created.UUID, err)
		}
	}

	s.logger.Info("todo updated",
		"uuid", id,
		"scope", params.Scope.String(),
		"removed", plan.Updated == nil,
		"created", plan.Created != nil)
	return plan, nil
}

// CompleteTodo records the current occurrence of todo id as done. A
// repeating todo moves on to its next occurrence, which is returned; a
// finished todo is removed and nil is returned.
func (s *EventService) CompleteTodo(ctx context.Context, id string) (event.DoneTodoEvent, *event.TodoEvent, error) {
	origin, err := s.repo.GetTodo(ctx, id)
	if err != nil {
		return event.DoneTodoEvent{}, nil, fmt.Errorf("complete todo %s: %w", id, err)
	}

	done, next := event.CompleteTodo(*origin, s.now())
	if err := s.repo.SaveDoneTodo(ctx, done); err != nil {
		return event.DoneTodoEvent{}, nil, fmt.Errorf("complete todo %s: %w", id, err)
	}
	if err := s.replaceTodo(ctx, id, next); err != nil {
		return event.DoneTodoEvent{}, nil, fmt.Errorf("complete todo %s: %w", id, err)
	}

	s.logger.Info("todo completed",
		"uuid", id,
		"done", done.UUID,
		"finished", next == nil)
	return done, next, nil
}

// RemoveTodo deletes the todo id. With onlyThisTime a repeating todo skips
// its current occurrence instead, and is deleted once nothing is left.
func (s *EventService) RemoveTodo(ctx context.Context, id string, onlyThisTime bool) error {
	if !onlyThisTime {
		if err := s.repo.RemoveTodo(ctx, id); err != nil {
			return fmt.Errorf("remove todo %s: %w", id, err)
		}
		s.logger.Info("todo removed", "uuid", id)
		return nil
	}

	origin, err := s.repo.GetTodo(ctx, id)
	if err != nil {
		return fmt.Errorf("remove todo %s: %w", id, err)
	}
	if origin.Repeating == nil {
		return fmt.Errorf("skip todo %s: %w", id, event.ErrNotRepeating)
	}

	next := event.AdvanceTodo(*origin)
	if err := s.replaceTodo(ctx, id, next); err != nil {
		return fmt.Errorf("skip todo %s: %w", id, err)
	}
	s.logger.Info("todo occurrence skipped", "uuid", id, "finished", next == nil)
	return nil
}

// DoneTodos lists completions of originID, or all completions when it is
// empty.
func (s *EventService) DoneTodos(ctx context.Context, originID string) ([]event.DoneTodoEvent, error) {
	done, err := s.repo.DoneTodos(ctx, originID)
	if err != nil {
		return nil, fmt.Errorf("done todos: %w", err)
	}
	return done, nil
}

// replaceTodo writes todo over id, or removes id when todo is nil.
func (s *EventService) replaceTodo(ctx context.Context, id string, todo *event.TodoEvent) error {
	if todo == nil {
		return s.repo.RemoveTodo(ctx, id)
	}
	return s.repo.UpdateTodo(ctx, *todo)
}

func (s *EventService) restoreTodo(ctx context.Context, origin event.TodoEvent, removed bool) error {
	if removed {
		return s.repo.MakeTodo(ctx, origin)
	}
	return s.repo.UpdateTodo(ctx, origin)
}
