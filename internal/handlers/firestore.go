package handlers

import (
	"context"

	"github.com/tidwall/gjson"

	"github.com/invertase/react-native-firebase/internal/firestore"
	"github.com/invertase/react-native-firebase/internal/snapshot"
	"github.com/invertase/react-native-firebase/internal/tagged"
)

func (h *Handler) documentOnSnapshot(ctx context.Context, args gjson.Result) (any, error) {
	listener, err := id(args, "listenerId")
	if err != nil {
		return nil, err
	}
	h.join(ctx, args)
	return nil, h.svc.Firestore.DocumentOnSnapshot(ctx,
		args.Get("app").String(), listener, args.Get("path").String(),
		listenOptions(args.Get("options")))
}

func (h *Handler) collectionOnSnapshot(ctx context.Context, args gjson.Result) (any, error) {
	listener, err := id(args, "listenerId")
	if err != nil {
		return nil, err
	}
	spec, err := firestore.ParseQuery(args)
	if err != nil {
		return nil, err
	}
	h.join(ctx, args)
	return nil, h.svc.Firestore.CollectionOnSnapshot(ctx,
		args.Get("app").String(), listener, spec,
		listenOptions(args.Get("listenerOptions")))
}

func (h *Handler) offSnapshot(ctx context.Context, args gjson.Result) (any, error) {
	listener, err := id(args, "listenerId")
	if err != nil {
		return nil, err
	}
	return h.svc.Firestore.OffSnapshot(ctx, args.Get("app").String(), listener), nil
}

func (h *Handler) documentGet(ctx context.Context, args gjson.Result) (any, error) {
	return h.svc.Firestore.DocumentGet(ctx,
		args.Get("app").String(), args.Get("path").String(),
		snapshot.ParseSource(args.Get("getOptions.source").String()))
}

func (h *Handler) collectionGet(ctx context.Context, args gjson.Result) (any, error) {
	spec, err := firestore.ParseQuery(args)
	if err != nil {
		return nil, err
	}
	return h.svc.Firestore.CollectionGet(ctx, args.Get("app").String(), spec, getOptions(args.Get("getOptions")))
}

func (h *Handler) documentSet(ctx context.Context, args gjson.Result) (any, error) {
	data, err := firestore.ParseData(args.Get("data"))
	if err != nil {
		return nil, err
	}
	opts, err := firestore.ParseSetOptions(args.Get("options"))
	if err != nil {
		return nil, err
	}
	return nil, h.svc.Firestore.DocumentSet(ctx, args.Get("app").String(), args.Get("path").String(), data, opts)
}

func (h *Handler) documentUpdate(ctx context.Context, args gjson.Result) (any, error) {
	data, err := firestore.ParseData(args.Get("data"))
	if err != nil {
		return nil, err
	}
	return nil, h.svc.Firestore.DocumentUpdate(ctx, args.Get("app").String(), args.Get("path").String(), data)
}

func (h *Handler) documentDelete(ctx context.Context, args gjson.Result) (any, error) {
	return nil, h.svc.Firestore.DocumentDelete(ctx, args.Get("app").String(), args.Get("path").String())
}

func (h *Handler) documentBatch(ctx context.Context, args gjson.Result) (any, error) {
	writes, err := firestore.ParseWrites(args.Get("writes"))
	if err != nil {
		return nil, err
	}
	return nil, h.svc.Firestore.DocumentBatch(ctx, args.Get("app").String(), writes)
}

func (h *Handler) transactionBegin(ctx context.Context, args gjson.Result) (any, error) {
	txID, err := id(args, "id")
	if err != nil {
		return nil, err
	}
	h.join(ctx, args)
	return nil, h.svc.Firestore.TransactionBegin(ctx, args.Get("app").String(), txID, args.Get("path").String())
}

func (h *Handler) transactionTryCommit(_ context.Context, args gjson.Result) (any, error) {
	txID, err := id(args, "id")
	if err != nil {
		return nil, err
	}
	abort := args.Get("abort").Bool()
	v := tagged.Null()
	if !abort {
		if v, err = tagged.FromResult(args.Get("value")); err != nil {
			return nil, err
		}
	}
	return nil, h.svc.Firestore.TransactionTryCommit(args.Get("app").String(), txID, v, abort)
}

func (h *Handler) transactionDispose(_ context.Context, args gjson.Result) (any, error) {
	txID, err := id(args, "id")
	if err != nil {
		return nil, err
	}
	h.svc.Firestore.TransactionDispose(args.Get("app").String(), txID)
	return nil, nil
}
