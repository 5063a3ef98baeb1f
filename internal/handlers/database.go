package handlers

import (
	"context"

	"github.com/tidwall/gjson"

	"github.com/invertase/react-native-firebase/internal/database"
	"github.com/invertase/react-native-firebase/internal/registry"
	"github.com/invertase/react-native-firebase/internal/tagged"
)

func databaseQuery(args gjson.Result) (database.QuerySpec, error) {
	return database.ParseQuery(args.Get("path").String(), args.Get("modifiers"))
}

func (h *Handler) databaseOn(ctx context.Context, args gjson.Result) (any, error) {
	listener, err := id(args, "key")
	if err != nil {
		return nil, err
	}
	k, err := kind(args, "eventType")
	if err != nil {
		return nil, err
	}
	spec, err := databaseQuery(args)
	if err != nil {
		return nil, err
	}
	h.join(ctx, args)
	return nil, h.svc.Database.On(ctx, args.Get("app").String(), args.Get("url").String(), listener, k, spec)
}

func (h *Handler) databaseOff(ctx context.Context, args gjson.Result) (any, error) {
	listener, err := id(args, "key")
	if err != nil {
		return nil, err
	}
	var k registry.Kind
	if args.Get("eventType").String() != "" {
		if k, err = kind(args, "eventType"); err != nil {
			return nil, err
		}
	}
	return h.svc.Database.Off(ctx, args.Get("app").String(), args.Get("url").String(), listener, k), nil
}

func (h *Handler) databaseOnce(ctx context.Context, args gjson.Result) (any, error) {
	k, err := kind(args, "eventType")
	if err != nil {
		return nil, err
	}
	spec, err := databaseQuery(args)
	if err != nil {
		return nil, err
	}
	return h.svc.Database.Once(ctx, args.Get("app").String(), args.Get("url").String(), k, spec)
}

func (h *Handler) databaseSet(ctx context.Context, args gjson.Result) (any, error) {
	v, err := required(args, "value")
	if err != nil {
		return nil, err
	}
	return nil, h.svc.Database.Set(ctx,
		args.Get("app").String(), args.Get("url").String(), args.Get("path").String(),
		tagged.FromPlain(v))
}

func (h *Handler) databaseUpdate(ctx context.Context, args gjson.Result) (any, error) {
	v, err := required(args, "values")
	if err != nil {
		return nil, err
	}
	return nil, h.svc.Database.Update(ctx,
		args.Get("app").String(), args.Get("url").String(), args.Get("path").String(),
		tagged.FromPlain(v))
}

func (h *Handler) databaseRemove(ctx context.Context, args gjson.Result) (any, error) {
	return nil, h.svc.Database.Remove(ctx,
		args.Get("app").String(), args.Get("url").String(), args.Get("path").String())
}

func (h *Handler) databaseTransactionStart(ctx context.Context, args gjson.Result) (any, error) {
	txID, err := id(args, "id")
	if err != nil {
		return nil, err
	}
	h.join(ctx, args)
	return nil, h.svc.Database.TransactionStart(ctx,
		args.Get("app").String(), args.Get("url").String(), txID, args.Get("path").String())
}

func (h *Handler) databaseTransactionTryCommit(_ context.Context, args gjson.Result) (any, error) {
	txID, err := id(args, "id")
	if err != nil {
		return nil, err
	}
	abort := args.Get("abort").Bool()
	v := tagged.Null()
	if !abort {
		v = tagged.FromPlain(args.Get("value"))
	}
	return nil, h.svc.Database.TransactionTryCommit(args.Get("app").String(), txID, v, abort)
}
