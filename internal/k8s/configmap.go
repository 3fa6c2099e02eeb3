package k8s

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
)

const (
	// MaxConfigMapBytes is the largest save file that fits a ConfigMap.
	MaxConfigMapBytes = 1 << 20

	managedByLabel       = "app.kubernetes.io/managed-by"
	managedByValue       = "fwkeeper"
	savedAtAnnotation    = "fwkeeper.io/saved-at"
	sourcePathAnnotation = "fwkeeper.io/source-path"
)

// Publisher copies saved rule files into a ConfigMap, one data key per file
// name. It implements persist.SaveHandler.
type Publisher struct {
	client    kubernetes.Interface
	namespace string
	name      string
	now       func() time.Time
	logger    *slog.Logger
}

// NewPublisher constructs a Publisher for the given ConfigMap reference.
func NewPublisher(client kubernetes.Interface, namespace, name string, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		client:    client,
		namespace: namespace,
		name:      name,
		now:       time.Now,
		logger:    logger,
	}
}

// OnSaved publishes the file at path, creating the ConfigMap when it does
// not exist yet. Other keys of an existing ConfigMap are kept.
func (p *Publisher) OnSaved(ctx context.Context, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read saved file: %w", err)
	}
	if len(data) > MaxConfigMapBytes {
		return fmt.Errorf("saved file %s is %d bytes, configmap limit is %d", path, len(data), MaxConfigMapBytes)
	}

	key := filepath.Base(path)
	savedAt := p.now().UTC().Format(time.RFC3339)
	configMaps := p.client.CoreV1().ConfigMaps(p.namespace)

	cm, err := configMaps.Get(ctx, p.name, metav1.GetOptions{})
	if err != nil {
		if !apierrors.IsNotFound(err) {
			return fmt.Errorf("get configmap %s/%s: %w", p.namespace, p.name, err)
		}
		cm = &corev1.ConfigMap{
			ObjectMeta: metav1.ObjectMeta{
				Name:      p.name,
				Namespace: p.namespace,
				Labels:    map[string]string{managedByLabel: managedByValue},
			},
		}
		stamp(cm, key, string(data), path, savedAt)
		if _, err := configMaps.Create(ctx, cm, metav1.CreateOptions{}); err != nil {
			return fmt.Errorf("create configmap %s/%s: %w", p.namespace, p.name, err)
		}
		p.logger.Info("published saved rules", slog.String("configmap", p.namespace+"/"+p.name), slog.String("key", key), slog.Bool("created", true))
		return nil
	}

	stamp(cm, key, string(data), path, savedAt)
	if _, err := configMaps.Update(ctx, cm, metav1.UpdateOptions{}); err != nil {
		return fmt.Errorf("update configmap %s/%s: %w", p.namespace, p.name, err)
	}
	p.logger.Info("published saved rules", slog.String("configmap", p.namespace+"/"+p.name), slog.String("key", key), slog.Bool("created", false))
	return nil
}

func stamp(cm *corev1.ConfigMap, key, contents, path, savedAt string) {
	if cm.Data == nil {
		cm.Data = map[string]string{}
	}
	if cm.Annotations == nil {
		cm.Annotations = map[string]string{}
	}
	cm.Data[key] = contents
	cm.Annotations[savedAtAnnotation] = savedAt
	cm.Annotations[sourcePathAnnotation] = path
}
