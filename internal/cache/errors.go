package cache

import "errors"

// ErrCacheMiss 缓存未命中
var ErrCacheMiss = errors.New("cache miss")
