// Package redis connects to Redis with go-redis and provides a distributed
// mutex.
//
// Connect retries until the server answers a ping and Healthcheck adapts a
// client to a readiness probe. Locker serializes work across processes on a
// string key using SET NX PX with a random token; release runs a
// compare-and-delete script, so a holder whose lock already expired cannot
// release someone else's lock:
//
//	locker := redis.NewLockerFromConfig(client, cfg)
//	release, err := locker.Acquire(ctx, "customer:"+id)
//	if err != nil {
//	    return err
//	}
//	defer release()
//
// Configuration is read from REDIS_* environment variables via Config.
package redis
