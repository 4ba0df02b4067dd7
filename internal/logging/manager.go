package logging

import (
	"fmt"
	"os"
	"sort"
	"sync"
)

// Компоненты сервиса с собственными файлами логов
const (
	ComponentWorld   = "world"
	ComponentFeed    = "feed"
	ComponentAPI     = "api"
	ComponentStorage = "storage"
)

// LoggerManager хранит по одному логгеру на компонент
type LoggerManager struct {
	mu      sync.Mutex
	loggers map[string]*Logger
}

var defaultManager = &LoggerManager{loggers: make(map[string]*Logger)}

// GetLoggerManager возвращает общий менеджер логгеров
func GetLoggerManager() *LoggerManager {
	return defaultManager
}

// GetLogger возвращает логгер компонента, открывая файл при первом обращении
func (lm *LoggerManager) GetLogger(component string) (*Logger, error) {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	if l, ok := lm.loggers[component]; ok {
		return l, nil
	}
	l, err := NewLogger(component)
	if err != nil {
		return nil, fmt.Errorf("logger %s: %w", component, err)
	}
	lm.loggers[component] = l
	return l, nil
}

// MustGetLogger как GetLogger, но при ошибке файла пишет только в консоль
func (lm *LoggerManager) MustGetLogger(component string) *Logger {
	l, err := lm.GetLogger(component)
	if err == nil {
		return l
	}
	fallback := NewConsoleLogger(component, os.Stdout, INFO)
	fallback.Warn("⚠️ Файловый лог недоступен: %v", err)
	return fallback
}

// CloseAll закрывает файлы всех компонентов и забывает их
func (lm *LoggerManager) CloseAll() error {
	lm.mu.Lock()
	loggers := lm.loggers
	lm.loggers = make(map[string]*Logger)
	lm.mu.Unlock()

	var firstErr error
	for component, l := range loggers {
		if err := l.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close logger %s: %w", component, err)
		}
	}
	return firstErr
}

// ListComponents имена открытых компонентов по алфавиту
func (lm *LoggerManager) ListComponents() []string {
	lm.mu.Lock()
	names := make([]string, 0, len(lm.loggers))
	for name := range lm.loggers {
		names = append(names, name)
	}
	lm.mu.Unlock()

	sort.Strings(names)
	return names
}

// SetLogLevel меняет уровни уже открытого компонента
func (lm *LoggerManager) SetLogLevel(component string, consoleLevel, fileLevel LogLevel) error {
	lm.mu.Lock()
	l, ok := lm.loggers[component]
	lm.mu.Unlock()
	if !ok {
		return fmt.Errorf("logger %s is not open", component)
	}
	l.SetLevels(consoleLevel, fileLevel)
	return nil
}

// GetComponentLogger логгер компонента из общего менеджера
func GetComponentLogger(component string) *Logger {
	return defaultManager.MustGetLogger(component)
}

func GetWorldLogger() *Logger   { return GetComponentLogger(ComponentWorld) }
func GetFeedLogger() *Logger    { return GetComponentLogger(ComponentFeed) }
func GetAPILogger() *Logger     { return GetComponentLogger(ComponentAPI) }
func GetStorageLogger() *Logger { return GetComponentLogger(ComponentStorage) }
