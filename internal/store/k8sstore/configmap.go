// Package k8sstore adapts the cluster's ConfigMap API to the store.Store
// interface: in-cluster config, clientset, bounded-retry reads.
package k8sstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/fields"
	"k8s.io/apimachinery/pkg/watch"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"

	"github.com/freezegate/freezegate/internal/store"
)

// Config holds configuration for the ConfigMap-backed store.
type Config struct {
	Namespace       string
	Timeout         time.Duration
	MaxRetries      int
	RetryBackoff    time.Duration
	MaxRetryBackoff time.Duration
	Logger          *slog.Logger
}

// DefaultConfig returns sensible defaults for the Kubernetes client.
func DefaultConfig(namespace string) Config {
	return Config{
		Namespace:       namespace,
		Timeout:         30 * time.Second,
		MaxRetries:      3,
		RetryBackoff:    100 * time.Millisecond,
		MaxRetryBackoff: 5 * time.Second,
		Logger:          slog.Default(),
	}
}

// ConfigMapStore implements store.Store over a single namespace's ConfigMaps.
type ConfigMapStore struct {
	clientset kubernetes.Interface
	cfg       Config
	logger    *slog.Logger
}

// New creates a ConfigMapStore from an existing clientset (tests inject a
// fake clientset; production wires a real in-cluster one via NewInCluster).
func New(clientset kubernetes.Interface, cfg Config) *ConfigMapStore {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &ConfigMapStore{clientset: clientset, cfg: cfg, logger: cfg.Logger}
}

// NewInCluster builds a ConfigMapStore from the pod's in-cluster
// service-account credentials, the production wiring path.
func NewInCluster(cfg Config) (*ConfigMapStore, error) {
	restCfg, err := rest.InClusterConfig()
	if err != nil {
		return nil, fmt.Errorf("k8sstore: load in-cluster config: %w", err)
	}
	restCfg.Timeout = cfg.Timeout
	clientset, err := kubernetes.NewForConfig(restCfg)
	if err != nil {
		return nil, fmt.Errorf("k8sstore: build clientset: %w", err)
	}
	return New(clientset, cfg), nil
}

func (s *ConfigMapStore) Read(ctx context.Context, name string) (map[string]string, error) {
	var data map[string]string
	err := s.retry(ctx, func() error {
		cm, err := s.clientset.CoreV1().ConfigMaps(s.cfg.Namespace).Get(ctx, name, metav1.GetOptions{})
		if err != nil {
			return err
		}
		data = cm.Data
		return nil
	})
	if err != nil {
		if apierrors.IsNotFound(err) {
			return nil, &store.NotFoundError{Name: name}
		}
		return nil, fmt.Errorf("k8sstore: read %s: %w", name, err)
	}
	return data, nil
}

func (s *ConfigMapStore) Patch(ctx context.Context, name string, data map[string]string) error {
	return s.retry(ctx, func() error {
		cms := s.clientset.CoreV1().ConfigMaps(s.cfg.Namespace)
		existing, err := cms.Get(ctx, name, metav1.GetOptions{})
		if apierrors.IsNotFound(err) {
			_, createErr := cms.Create(ctx, &corev1.ConfigMap{
				ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: s.cfg.Namespace},
				Data:       data,
			}, metav1.CreateOptions{})
			return createErr
		}
		if err != nil {
			return err
		}
		merged := make(map[string]string, len(existing.Data)+len(data))
		for k, v := range existing.Data {
			merged[k] = v
		}
		for k, v := range data {
			merged[k] = v
		}
		existing.Data = merged
		_, err = cms.Update(ctx, existing, metav1.UpdateOptions{})
		return err
	})
}

func (s *ConfigMapStore) Create(ctx context.Context, name string, data map[string]string) error {
	err := s.retry(ctx, func() error {
		_, err := s.clientset.CoreV1().ConfigMaps(s.cfg.Namespace).Create(ctx, &corev1.ConfigMap{
			ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: s.cfg.Namespace},
			Data:       data,
		}, metav1.CreateOptions{})
		return err
	})
	if apierrors.IsAlreadyExists(err) {
		return &store.AlreadyExistsError{Name: name}
	}
	return err
}

// Watch subscribes to a single named ConfigMap via a field-selected watch.
// The stream runs on a dedicated worker and is re-established whenever the
// server-side (60s) or client-guard (65s) timeout elapses; this function
// only opens one underlying watch attempt per call, the Config Loader owns
// the re-subscribe loop.
func (s *ConfigMapStore) Watch(ctx context.Context, name string) (<-chan store.Event, error) {
	selector := fields.OneTermEqualSelector("metadata.name", name).String()
	w, err := s.clientset.CoreV1().ConfigMaps(s.cfg.Namespace).Watch(ctx, metav1.ListOptions{
		FieldSelector:  selector,
		TimeoutSeconds: int64Ptr(60),
	})
	if err != nil {
		return nil, fmt.Errorf("k8sstore: watch %s: %w", name, err)
	}

	out := make(chan store.Event, 1)
	go func() {
		defer close(out)
		defer w.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.ResultChan():
				if !ok {
					select {
					case out <- store.Event{Type: store.EventError, Name: name, Err: errors.New("watch channel closed")}:
					case <-ctx.Done():
					}
					return
				}
				cm, ok := ev.Object.(*corev1.ConfigMap)
				if !ok {
					continue
				}
				var kind store.EventType
				switch ev.Type {
				case watch.Added:
					kind = store.EventAdded
				case watch.Modified:
					kind = store.EventModified
				case watch.Deleted:
					kind = store.EventDeleted
				default:
					continue
				}
				emitted := store.Event{Type: kind, Name: name, Data: cm.Data}
				select {
				case out <- emitted:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// retry applies bounded exponential backoff around transient API errors;
// NotFound/AlreadyExists are returned immediately since retrying cannot
// change the outcome.
func (s *ConfigMapStore) retry(ctx context.Context, op func() error) error {
	backoff := s.cfg.RetryBackoff
	if backoff <= 0 {
		backoff = 100 * time.Millisecond
	}
	maxRetries := s.cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
			backoff *= 2
			if s.cfg.MaxRetryBackoff > 0 && backoff > s.cfg.MaxRetryBackoff {
				backoff = s.cfg.MaxRetryBackoff
			}
		}
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if apierrors.IsNotFound(lastErr) || apierrors.IsAlreadyExists(lastErr) || apierrors.IsInvalid(lastErr) {
			return lastErr
		}
	}
	return lastErr
}

func int64Ptr(v int64) *int64 { return &v }
