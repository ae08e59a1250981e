package domain

import "errors"

// ErrDuplicateURL возвращается при попытке вставить статью с уже известным URL.
// Это ожидаемый исход дедупа, а не сбой.
var ErrDuplicateURL = errors.New("статья с таким url уже существует")

// ErrArticleNotFound возвращается, если статья не найдена.
var ErrArticleNotFound = errors.New("статья не найдена")

// ErrSubscriptionGone возвращается push-транспортом, когда endpoint
// перестал существовать (410/404): подписку нужно удалить.
var ErrSubscriptionGone = errors.New("push-подписка более недействительна")
