// Package kubernetes implements resource.CloudProvider by creating a
// single-replica Deployment per worker resource, grounded on the teacher's
// cloud/kyma.Client in-cluster-then-kubeconfig connection resolution and
// deploy/delete lifecycle.
package kubernetes

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	apiresource "k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"

	"github.com/bsc-wdc/compss-core/pkg/resource"
)

type Config struct {
	KubeconfigPath string
	Namespace      string
	Image          string // worker image every compss-core task implementation runs in
}

type Provider struct {
	clientset *kubernetes.Clientset
	cfg       Config
}

func resolveConfig(kubeconfigPath string) (*rest.Config, error) {
	if cfg, err := rest.InClusterConfig(); err == nil {
		return cfg, nil
	}
	if kubeconfigPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("kubernetes provider: resolve home dir: %w", err)
		}
		kubeconfigPath = filepath.Join(home, ".kube", "config")
	}
	return clientcmd.BuildConfigFromFlags("", kubeconfigPath)
}

func New(cfg Config) (*Provider, error) {
	restCfg, err := resolveConfig(cfg.KubeconfigPath)
	if err != nil {
		return nil, fmt.Errorf("kubernetes provider: resolve kubeconfig: %w", err)
	}
	clientset, err := kubernetes.NewForConfig(restCfg)
	if err != nil {
		return nil, fmt.Errorf("kubernetes provider: new clientset: %w", err)
	}
	if cfg.Namespace == "" {
		cfg.Namespace = "default"
	}
	return &Provider{clientset: clientset, cfg: cfg}, nil
}

func (p *Provider) Name() string { return "kubernetes" }

func deploymentName(resourceId string) string { return "compss-worker-" + resourceId }

func (p *Provider) CreateInstance(ctx context.Context, desc resource.Description) (string, error) {
	name := deploymentName(desc.Id)
	replicas := int32(1)

	resourceRequests := corev1.ResourceList{}
	if desc.CPUs > 0 {
		resourceRequests[corev1.ResourceCPU] = apiresource.MustParse(fmt.Sprintf("%d", desc.CPUs))
	}
	if desc.MemoryMB > 0 {
		resourceRequests[corev1.ResourceMemory] = apiresource.MustParse(fmt.Sprintf("%dMi", desc.MemoryMB))
	}

	deployment := &appsv1.Deployment{
		ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: p.cfg.Namespace},
		Spec: appsv1.DeploymentSpec{
			Replicas: &replicas,
			Selector: &metav1.LabelSelector{MatchLabels: map[string]string{"app": name}},
			Template: corev1.PodTemplateSpec{
				ObjectMeta: metav1.ObjectMeta{Labels: map[string]string{"app": name}},
				Spec: corev1.PodSpec{
					Containers: []corev1.Container{{
						Name:      "worker",
						Image:     p.cfg.Image,
						Resources: corev1.ResourceRequirements{Requests: resourceRequests},
					}},
				},
			},
		},
	}

	_, err := p.clientset.AppsV1().Deployments(p.cfg.Namespace).Create(ctx, deployment, metav1.CreateOptions{})
	if err != nil {
		return "", fmt.Errorf("kubernetes provider: create deployment: %w", err)
	}
	return name, nil
}

func (p *Provider) DestroyInstance(ctx context.Context, instanceId string) error {
	err := p.clientset.AppsV1().Deployments(p.cfg.Namespace).Delete(ctx, instanceId, metav1.DeleteOptions{})
	if err != nil {
		return fmt.Errorf("kubernetes provider: delete deployment %q: %w", instanceId, err)
	}
	return nil
}
